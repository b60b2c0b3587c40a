package agentpg

import (
	"context"
	"fmt"
	"strings"
)

const searchMaxLimit = 200

// escapeLiteral doubles single quotes for safe embedding in a SQL string
// literal. Assembled queries still pass the validator and execute on a
// read-only session.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func clampSearchLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > searchMaxLimit {
		return searchMaxLimit
	}
	return limit
}

// buildSearchMessagesSQL assembles the message search query from the
// filters. Kept pure for testability.
func buildSearchMessagesSQL(input SearchMessagesInput) string {
	joins := []string{
		"FROM missive.messages m",
		"LEFT JOIN missive.contacts c ON m.from_contact_id = c.id",
	}
	var conditions []string

	if input.Label != "" {
		joins = append(joins,
			"JOIN missive.conversation_labels cl ON m.conversation_id = cl.conversation_id",
			"JOIN missive.shared_labels sl ON cl.label_id = sl.id")
		conditions = append(conditions, fmt.Sprintf("sl.name ILIKE '%%%s%%'", escapeLiteral(input.Label)))
	}
	if input.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("m.subject ILIKE '%%%s%%'", escapeLiteral(input.Subject)))
	}
	if input.FromEmail != "" {
		conditions = append(conditions, fmt.Sprintf("c.email = '%s'", escapeLiteral(input.FromEmail)))
	}
	if input.SearchText != "" {
		safe := escapeLiteral(input.SearchText)
		conditions = append(conditions, fmt.Sprintf("(m.subject ILIKE '%%%s%%' OR m.body_plain_text ILIKE '%%%s%%')", safe, safe))
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}
	return fmt.Sprintf(
		"SELECT m.id, m.subject, m.preview, m.delivered_at, c.name AS from_name %s WHERE %s ORDER BY m.delivered_at DESC LIMIT %d",
		strings.Join(joins, " "), where, clampSearchLimit(input.Limit))
}

// buildSearchTasksSQL assembles the task search query from the filters.
func buildSearchTasksSQL(input SearchTasksInput) string {
	joins := []string{
		"FROM teamwork.tasks t",
		"LEFT JOIN teamwork.projects p ON t.project_id = p.id",
		"LEFT JOIN teamwork.task_assignees ta ON t.id = ta.task_id",
		"LEFT JOIN teamwork.users u ON ta.user_id = u.id",
	}
	var conditions []string

	if input.ProjectName != "" {
		conditions = append(conditions, fmt.Sprintf("p.name ILIKE '%%%s%%'", escapeLiteral(input.ProjectName)))
	}
	if input.Status != "" {
		conditions = append(conditions, fmt.Sprintf("t.status = '%s'", escapeLiteral(input.Status)))
	}
	if input.AssigneeEmail != "" {
		conditions = append(conditions, fmt.Sprintf("u.email = '%s'", escapeLiteral(input.AssigneeEmail)))
	}
	if input.SearchText != "" {
		safe := escapeLiteral(input.SearchText)
		conditions = append(conditions, fmt.Sprintf("(t.name ILIKE '%%%s%%' OR t.description ILIKE '%%%s%%')", safe, safe))
	}
	if input.Tag != "" {
		joins = append(joins,
			"JOIN teamwork.task_tags tt ON t.id = tt.task_id",
			"JOIN teamwork.tags tg ON tt.tag_id = tg.id")
		conditions = append(conditions, fmt.Sprintf("tg.name ILIKE '%%%s%%'", escapeLiteral(input.Tag)))
	}
	if input.OverdueOnly {
		conditions = append(conditions, "t.due_date < NOW()", "t.status != 'completed'")
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}
	return fmt.Sprintf(
		"SELECT DISTINCT t.id, t.name AS task_name, t.description, t.status, t.priority, t.due_date, t.created_at, p.name AS project_name, u.email AS assignee_email %s WHERE %s ORDER BY t.created_at DESC LIMIT %d",
		strings.Join(joins, " "), where, clampSearchLimit(input.Limit))
}

// SearchMessages searches email messages by subject, sender, label, or
// full-text match, newest first.
func (g *Gateway) SearchMessages(ctx context.Context, input SearchMessagesInput) *QueryOutput {
	return g.Query(ctx, QueryInput{SQL: buildSearchMessagesSQL(input)})
}

// SearchTasks searches tasks by project, status, assignee, tag, or text
// match, newest first.
func (g *Gateway) SearchTasks(ctx context.Context, input SearchTasksInput) *QueryOutput {
	return g.Query(ctx, QueryInput{SQL: buildSearchTasksSQL(input)})
}
