package ai

import (
	"context"
	"fmt"
)

const taskSystemPrompt = "You are a productivity assistant that breaks goals into actionable tasks. Return only valid JSON."

// GenerateTasks 把目标拆成 5-7 个任务；无法解析时返回错误
func (c *Client) GenerateTasks(ctx context.Context, goal string) ([]PlannedTask, error) {
	prompt := fmt.Sprintf(`Break down the following goal into 5-7 structured, actionable daily tasks.
Return a JSON array of tasks, each with: title, description, priority (low/medium/high), and estimatedDays.

Goal: %s

Return only valid JSON array, no additional text.`, goal)

	content, err := c.complete(ctx, chatRequest{
		operation:   "generate_tasks",
		system:      taskSystemPrompt,
		user:        prompt,
		temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}

	tasks, err := decodeTasks(content)
	if err != nil {
		return nil, malformed("AI returned an invalid task list. Please try again.", err)
	}
	valid := tasks[:0]
	for _, t := range tasks {
		if t.Title != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return nil, malformed("AI returned no usable tasks. Please try again.", nil)
	}
	return valid, nil
}
