/*
 * @module service/models/jsonb
 * @description JSONB 列类型：对象、对象数组
 * @architecture 数据模型层
 * @documentReference DESIGN.md
 * @stateFlow Go 值 <-> JSON 文本（postgres jsonb / sqlite text）
 * @rules nil 值存为 NULL；扫描同时接受 []byte 与 string
 * @dependencies database/sql/driver, encoding/json
 * @refs analysis.go
 */

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// 通用 JSON 类型
type JSONB map[string]interface{}

// JSONBArray 对象数组，用于存储数据集行
type JSONBArray []JSONB

func scanJSON(value interface{}, target interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("类型断言失败: 不是 []byte 或 string")
	}
	return json.Unmarshal(bytes, target)
}

// 实现 Scanner 接口
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	return scanJSON(value, j)
}

// 实现 Valuer 接口
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONBArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	return scanJSON(value, j)
}

func (j JSONBArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// RecordsToJSONB 将记录列表转换为 JSONBArray
func RecordsToJSONB(records []map[string]interface{}) JSONBArray {
	out := make(JSONBArray, len(records))
	for i, r := range records {
		out[i] = JSONB(r)
	}
	return out
}

// Records 转换回普通记录列表
func (j JSONBArray) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, len(j))
	for i, r := range j {
		out[i] = map[string]interface{}(r)
	}
	return out
}

// ToJSONB 将任意可序列化的值转换为 JSONB 对象
func ToJSONB(v interface{}) (JSONB, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out JSONB
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromJSONB 将 JSONB 对象解码到目标结构
func FromJSONB(j JSONB, target interface{}) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}
