package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ByLCY/stencil/dsl"
	"github.com/ByLCY/stencil/model"
)

const categoriesStem = "categories"

// LoadFS builds a store from every template file in fsys:
//
//	*.json          JSON template
//	*.yaml, *.yml   the same document written in YAML
//	*.stencil       template DSL
//	categories.*    category list (json or yaml)
func LoadFS(fsys fs.FS) (*Store, error) {
	s := New()
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		stem := strings.TrimSuffix(d.Name(), path.Ext(d.Name()))
		if !isTemplateExt(ext) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}

		if stem == categoriesStem && ext != ".stencil" {
			var cats []model.Category
			if err := decodeDocument(ext, data, &cats); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			s.SetCategories(cats)
			return nil
		}

		tmpl, err := DecodeFile(d.Name(), data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if err := s.Add(tmpl); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.normalizeLocked()
	s.mu.Unlock()
	return s, nil
}

func isTemplateExt(ext string) bool {
	switch ext {
	case ".json", ".yaml", ".yml", ".stencil":
		return true
	}
	return false
}

// DecodeFile decodes one template file, choosing the format by extension.
// A template without an id takes the file name without extension.
func DecodeFile(name string, data []byte) (*model.Template, error) {
	ext := strings.ToLower(path.Ext(name))
	if !isTemplateExt(ext) {
		return nil, fmt.Errorf("unsupported template file %q", name)
	}
	tmpl, err := decodeTemplate(ext, data)
	if err != nil {
		return nil, err
	}
	if tmpl.ID == "" {
		tmpl.ID = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	return tmpl, nil
}

func decodeTemplate(ext string, data []byte) (*model.Template, error) {
	switch ext {
	case ".stencil":
		return dsl.CompileString(string(data))
	case ".json":
		return model.DecodeTemplate(data)
	default:
		raw, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		return model.DecodeTemplate(raw)
	}
}

// decodeDocument 解码 json 或 yaml 文档；yaml 先转成 json，保证两种格式共用同一套字段规则。
func decodeDocument(ext string, data []byte, v any) error {
	if ext != ".json" {
		raw, err := yamlToJSON(data)
		if err != nil {
			return err
		}
		data = raw
	}
	return json.Unmarshal(data, v)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析 yaml 失败: %w", err)
	}
	return json.Marshal(doc)
}
