package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	fenceJSON  = regexp.MustCompile("```json\\n?")
	fence      = regexp.MustCompile("```\\n?")
	jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)
)

// stripFences 去掉 markdown 代码块标记
func stripFences(content string) string {
	content = fenceJSON.ReplaceAllString(content, "")
	content = fence.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// extractObject 去掉代码块后取第一个 '{' 到最后一个 '}' 之间的内容
func extractObject(content string) string {
	content = stripFences(content)
	if m := jsonObject.FindString(content); m != "" {
		return m
	}
	return content
}

// NoteItem 是模型返回的动作项，可能是字符串也可能是对象
type NoteItem struct {
	Description string
	AssignedTo  string
	DueDate     *time.Time
}

type MeetingNotes struct {
	Summary     string
	KeyPoints   []string
	ActionItems []NoteItem
	// Fallback 为 true 表示内容由模板生成，不是模型输出
	Fallback bool
}

// decodeNotes 容忍字段名的大小写/下划线变体
func decodeNotes(content string) (*MeetingNotes, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractObject(content)), &raw); err != nil {
		return nil, err
	}

	notes := &MeetingNotes{}
	for _, key := range []string{"summary", "Summary"} {
		var s string
		if v, ok := raw[key]; ok && json.Unmarshal(v, &s) == nil && s != "" {
			notes.Summary = s
			break
		}
	}
	notes.KeyPoints = stringList(firstArray(raw, "keyPoints", "key_points", "KeyPoints"))
	for _, item := range firstArray(raw, "actionItems", "action_items", "ActionItems") {
		if ni, ok := decodeNoteItem(item); ok {
			notes.ActionItems = append(notes.ActionItems, ni)
		}
	}
	if notes.KeyPoints == nil {
		notes.KeyPoints = []string{}
	}
	return notes, nil
}

func firstArray(raw map[string]json.RawMessage, keys ...string) []json.RawMessage {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var arr []json.RawMessage
		if json.Unmarshal(v, &arr) == nil {
			return arr
		}
	}
	return nil
}

func stringList(items []json.RawMessage) []string {
	var out []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
			continue
		}
		if ni, ok := decodeNoteItem(item); ok {
			out = append(out, ni.Description)
		}
	}
	return out
}

func decodeNoteItem(item json.RawMessage) (NoteItem, bool) {
	var s string
	if json.Unmarshal(item, &s) == nil {
		return NoteItem{Description: s}, true
	}

	var obj struct {
		Description string `json:"description"`
		Text        string `json:"text"`
		Task        string `json:"task"`
		AssignedTo  string `json:"assignedTo"`
		Assignee    string `json:"assignee"`
		DueDate     string `json:"dueDate"`
	}
	if json.Unmarshal(item, &obj) != nil {
		return NoteItem{}, false
	}
	ni := NoteItem{Description: obj.Description, AssignedTo: obj.AssignedTo}
	if ni.Description == "" {
		ni.Description = obj.Text
	}
	if ni.Description == "" {
		ni.Description = obj.Task
	}
	if ni.AssignedTo == "" {
		ni.AssignedTo = obj.Assignee
	}
	if t, ok := parseDate(obj.DueDate); ok {
		ni.DueDate = &t
	}
	return ni, true
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// PlannedTask 是由目标拆解出的任务
type PlannedTask struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      string `json:"priority"`
	EstimatedDays days   `json:"estimatedDays"`
}

// days 接受数字或数字字符串
type days float64

func (d *days) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = days(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("estimatedDays: %w", err)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*d = 0
		return nil
	}
	*d = days(f)
	return nil
}

func decodeTasks(content string) ([]PlannedTask, error) {
	content = stripFences(content)

	var tasks []PlannedTask
	if err := json.Unmarshal([]byte(content), &tasks); err == nil {
		return tasks, nil
	}
	// 某些模型会包一层 {"tasks": [...]}
	var wrapped struct {
		Tasks []PlannedTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(extractObject(content)), &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Tasks == nil {
		return nil, fmt.Errorf("no task array in response")
	}
	return wrapped.Tasks, nil
}
