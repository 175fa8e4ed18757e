package dsl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ByLCY/stencil/layout"
	"github.com/ByLCY/stencil/model"
)

// ErrCompile 标记模板源文件语义错误（未知元素、未知属性、非法取值）。
var ErrCompile = errors.New("dsl: invalid template")

// Compile converts a parsed document into a template. Elements keep the order
// in which they appear in the file, which is also their draw order.
func Compile(doc *Document) (*model.Template, error) {
	if doc == nil || doc.Body == nil {
		return nil, fmt.Errorf("%w: empty document", ErrCompile)
	}
	width, err := lengthArg(doc.Width)
	if err != nil {
		return nil, fmt.Errorf("%w: width: %v", ErrCompile, err)
	}
	height, err := lengthArg(doc.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: height: %v", ErrCompile, err)
	}

	tmpl := &model.Template{ID: doc.Name, Name: doc.Name, Width: width, Height: height}
	seen := map[string]int{}
	for _, st := range doc.Body.Statements {
		switch {
		case st.Assignment != nil:
			if err := applyTemplateKey(tmpl, st.Assignment); err != nil {
				return nil, err
			}
		case st.Command != nil:
			el, err := compileElement(st.Command)
			if err != nil {
				return nil, err
			}
			// 同名变量的元素追加序号，保证元素 ID 唯一
			if n := seen[el.ID]; n > 0 {
				seen[el.ID] = n + 1
				el.ID = fmt.Sprintf("%s-%d", el.ID, n+1)
			} else {
				seen[el.ID] = 1
			}
			tmpl.Elements = append(tmpl.Elements, el)
		case st.Text != nil:
			return nil, fmt.Errorf("%w: text literal outside of a text element", ErrCompile)
		}
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// CompileString parses and compiles template source in one step.
func CompileString(src string) (*model.Template, error) {
	doc, err := ParseString(src)
	if err != nil {
		return nil, err
	}
	return Compile(doc)
}

func applyTemplateKey(tmpl *model.Template, a *Assignment) error {
	val, err := scalar(a.Value)
	if err != nil {
		return keyError(a, err)
	}
	switch a.Key {
	case "id":
		tmpl.ID = val
	case "name":
		tmpl.Name = val
	case "category":
		tmpl.CategoryID = val
	case "group":
		tmpl.Group = val
	case "background":
		tmpl.BackgroundImage = val
	case "active":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return keyError(a, err)
		}
		tmpl.Active = b
	default:
		return keyError(a, errors.New("unknown template property"))
	}
	return nil
}

func compileElement(cmd *Command) (model.Element, error) {
	var el model.Element
	if len(cmd.Args) == 0 {
		return el, fmt.Errorf("%w: %s: %s needs a variable name", ErrCompile, cmd.Pos, cmd.Name)
	}
	el.VariableName = cmd.Args[0].Value
	el.ID = el.VariableName

	rest := cmd.Args[1:]
	if len(rest) > 0 {
		if len(rest) != 3 || rest[0].Value != "at" {
			return el, fmt.Errorf("%w: %s: expected `at X Y` after %s", ErrCompile, cmd.Pos, el.VariableName)
		}
		x, err := lengthArg(rest[1].Value)
		if err != nil {
			return el, fmt.Errorf("%w: %s: x: %v", ErrCompile, rest[1].Pos, err)
		}
		y, err := lengthArg(rest[2].Value)
		if err != nil {
			return el, fmt.Errorf("%w: %s: y: %v", ErrCompile, rest[2].Pos, err)
		}
		el.X, el.Y = x, y
	}

	var stmts []*Statement
	if cmd.Block != nil {
		stmts = cmd.Block.Statements
	}
	switch cmd.Name {
	case "text":
		d := &model.TextData{}
		if err := compileText(&el, d, stmts); err != nil {
			return el, err
		}
		el.Data = d
	case "image":
		d := &model.ImageData{}
		if err := compileImage(&el, d, stmts); err != nil {
			return el, err
		}
		el.Data = d
	default:
		return el, fmt.Errorf("%w: %s: %q: %w", ErrCompile, cmd.Pos, cmd.Name, model.ErrUnknownElementType)
	}
	return el, nil
}

func compileText(el *model.Element, d *model.TextData, stmts []*Statement) error {
	var lines []string
	for _, st := range stmts {
		if st.Text != nil {
			lines = append(lines, string(st.Text.Value))
			continue
		}
		a := st.Assignment
		if a == nil {
			return fmt.Errorf("%w: %s: nested commands are not allowed in text", ErrCompile, st.Command.Pos)
		}
		val, err := scalar(a.Value)
		if err != nil {
			return keyError(a, err)
		}
		switch a.Key {
		case "id":
			el.ID = val
		case "content":
			lines = append(lines, val)
		case "size", "font-size":
			d.FontSize, err = lengthArg(val)
		case "font", "font-family":
			d.FontFamily = val
		case "weight", "font-weight":
			d.FontWeight = val
		case "color":
			if _, perr := model.ParseColor(val); perr != nil {
				err = perr
			}
			d.Color = val
		case "align", "text-align":
			d.TextAlign = model.TextAlign(val)
		case "max-width":
			d.MaxWidth, err = lengthArg(val)
		case "letter-spacing":
			d.LetterSpacing, err = lengthArg(val)
		default:
			err = errors.New("unknown text property")
		}
		if err != nil {
			return keyError(a, err)
		}
	}
	d.Content = strings.Join(lines, "\n")
	return nil
}

func compileImage(el *model.Element, d *model.ImageData, stmts []*Statement) error {
	for _, st := range stmts {
		a := st.Assignment
		if a == nil {
			return fmt.Errorf("%w: image %s accepts properties only", ErrCompile, el.VariableName)
		}
		val, err := scalar(a.Value)
		if err != nil {
			return keyError(a, err)
		}
		switch a.Key {
		case "id":
			el.ID = val
		case "src":
			d.Src = val
		case "width":
			d.Width, err = lengthArg(val)
		case "height":
			d.Height, err = lengthArg(val)
		case "fit", "object-fit":
			d.ObjectFit = model.ObjectFit(val)
		default:
			err = errors.New("unknown image property")
		}
		if err != nil {
			return keyError(a, err)
		}
	}
	return nil
}

func scalar(v *Value) (string, error) {
	if v == nil {
		return "", errors.New("missing value")
	}
	return v.Text(), nil
}

func lengthArg(raw string) (float64, error) {
	l, ok := layout.ParseLength(raw)
	if !ok {
		return 0, fmt.Errorf("invalid length %q", raw)
	}
	return l.ToPX(), nil
}

func keyError(a *Assignment, err error) error {
	return fmt.Errorf("%w: %s: %s: %v", ErrCompile, a.Pos, a.Key, err)
}
