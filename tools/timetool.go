package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// CurrentTimeTool reports the current time in a zone.
type CurrentTimeTool struct {
	BaseTool
	now func() time.Time
}

// NewCurrentTimeTool creates the current time tool.
func NewCurrentTimeTool() *CurrentTimeTool {
	return &CurrentTimeTool{now: time.Now}
}

// Metadata returns the tool metadata.
func (t *CurrentTimeTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "get_current_time",
		Description: "Get the current date and time. You can specify a timezone (e.g., 'Asia/Shanghai', 'Europe/London'). If not specified, defaults to the server's timezone.",
		Parameters: []ToolParameter{
			{Name: "timezone", ParamType: "string", Description: "The IANA timezone ID (optional)", Required: false},
		},
	}
}

type currentTimeArgs struct {
	Timezone string `json:"timezone"`
}

// Execute formats the current time, e.g. "2025-12-05 Friday 17:02:58 (CST)".
func (t *CurrentTimeTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := decodeArgs[currentTimeArgs](args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}

	loc := time.Local
	if zone := strings.TrimSpace(a.Timezone); zone != "" {
		loc, err = time.LoadLocation(zone)
		if err != nil {
			return FailureResult(Permanent(fmt.Errorf("invalid timezone ID '%s'", zone))), nil
		}
	}
	return SuccessResult(t.now().In(loc).Format("2006-01-02 Monday 15:04:05 (MST)")), nil
}

// DateDiffTool counts calendar days between today and a target date.
type DateDiffTool struct {
	now func() time.Time
}

// NewDateDiffTool creates the date difference tool.
func NewDateDiffTool() *DateDiffTool {
	return &DateDiffTool{now: time.Now}
}

// Metadata returns the tool metadata.
func (t *DateDiffTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "date_diff",
		Description: "Calculate the difference in days between today and a target date.",
		Parameters: []ToolParameter{
			{Name: "target_date", ParamType: "string", Description: "The target date (format: yyyy-MM-dd)", Required: true},
		},
	}
}

type dateDiffArgs struct {
	TargetDate string `json:"target_date"`
}

// Validate checks the date format.
func (t *DateDiffTool) Validate(args json.RawMessage) error {
	a, err := decodeArgs[dateDiffArgs](args)
	if err != nil {
		return err
	}
	if _, err := time.Parse(dateLayout, strings.TrimSpace(a.TargetDate)); err != nil {
		return fmt.Errorf("invalid date '%s', use format yyyy-MM-dd", a.TargetDate)
	}
	return nil
}

// Execute reports how many days remain until, or have passed since, the
// target date.
func (t *DateDiffTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := decodeArgs[dateDiffArgs](args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	raw := strings.TrimSpace(a.TargetDate)

	now := t.now()
	target, err := time.ParseInLocation(dateLayout, raw, now.Location())
	if err != nil {
		return FailureResult(Permanent(fmt.Errorf("invalid date '%s', use format yyyy-MM-dd", raw))), nil
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	// Round rather than truncate so DST shifts do not lose a day.
	days := int((target.Sub(today).Hours() + 12) / 24)
	if target.Before(today) {
		days = int((today.Sub(target).Hours() + 12) / 24)
	}

	switch {
	case target.After(today):
		return SuccessResult(fmt.Sprintf("%d days until %s.", days, raw)), nil
	case target.Before(today):
		return SuccessResult(fmt.Sprintf("%d days have passed since %s.", days, raw)), nil
	default:
		return SuccessResult(fmt.Sprintf("%s is today.", raw)), nil
	}
}
