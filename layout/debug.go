package layout

import (
	"encoding/json"
	"os"
)

// WriteDebugJSON 将排版结果输出为 JSON，便于调试或可视化。
func WriteDebugJSON(blocks map[string]Block, path string) error {
	if len(blocks) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
