package agentpg

import (
	"context"
	"fmt"
)

func projectCondition(input ProjectInput) (string, error) {
	if input.ProjectID > 0 {
		return fmt.Sprintf("p.id = %d", input.ProjectID), nil
	}
	if input.ProjectName != "" {
		return fmt.Sprintf("p.name ILIKE '%%%s%%'", escapeLiteral(input.ProjectName)), nil
	}
	return "", fmt.Errorf("provide either project_id or project_name")
}

// ProjectSummary returns one row per matching project with task counts by
// status, overdue count, and last activity.
func (g *Gateway) ProjectSummary(ctx context.Context, input ProjectInput) *QueryOutput {
	cond, err := projectCondition(input)
	if err != nil {
		return &QueryOutput{Error: err.Error()}
	}

	sql := fmt.Sprintf(`SELECT p.id, p.name, p.description, p.status, p.start_date, p.end_date, p.created_at,
       COUNT(t.id) AS total_tasks,
       COUNT(CASE WHEN t.status = 'completed' THEN 1 END) AS completed,
       COUNT(CASE WHEN t.status = 'new' THEN 1 END) AS new_tasks,
       COUNT(CASE WHEN t.status NOT IN ('completed', 'new') THEN 1 END) AS in_progress,
       COUNT(CASE WHEN t.due_date < NOW() AND t.status != 'completed' THEN 1 END) AS overdue,
       MAX(t.updated_at) AS last_activity
FROM teamwork.projects p
LEFT JOIN teamwork.tasks t ON p.id = t.project_id
WHERE %s
GROUP BY p.id ORDER BY p.name LIMIT 10`, cond)

	return g.Query(ctx, QueryInput{SQL: sql})
}

// ProjectDashboard aggregates recent activity for one project across tasks,
// emails, and files. Every statement routes through the gateway, so the
// caller's row-level-security context applies to each.
func (g *Gateway) ProjectDashboard(ctx context.Context, input ProjectInput) *DashboardOutput {
	cond, err := projectCondition(input)
	if err != nil {
		return &DashboardOutput{Error: err.Error()}
	}

	find := g.Query(ctx, QueryInput{SQL: fmt.Sprintf(
		"SELECT p.id, p.name FROM teamwork.projects p WHERE %s LIMIT 1", cond)})
	if find.Error != "" {
		return &DashboardOutput{Error: find.Error}
	}
	if len(find.Rows) == 0 {
		label := input.ProjectName
		if label == "" {
			label = fmt.Sprintf("%d", input.ProjectID)
		}
		return &DashboardOutput{Error: fmt.Sprintf("project not found: %s", label)}
	}
	pid := find.Rows[0]["id"]
	pname := find.Rows[0]["name"]

	// pid came out of the projects table as an integer; embedding it as a
	// literal keeps every statement a plain validated SELECT.
	pidLit := fmt.Sprintf("%v", pid)

	statsSQL := fmt.Sprintf(`SELECT COUNT(*) AS total,
       COUNT(CASE WHEN status = 'completed' THEN 1 END) AS completed,
       COUNT(CASE WHEN status = 'new' THEN 1 END) AS new,
       COUNT(CASE WHEN status NOT IN ('completed','new') THEN 1 END) AS in_progress,
       COUNT(CASE WHEN due_date < NOW() AND status != 'completed' THEN 1 END) AS overdue
FROM teamwork.tasks WHERE project_id = %s`, pidLit)

	tasksSQL := fmt.Sprintf(`SELECT id, name, status, priority, due_date, updated_at
FROM teamwork.tasks
WHERE project_id = %s AND status != 'completed'
ORDER BY updated_at DESC LIMIT 5`, pidLit)

	emailsSQL := fmt.Sprintf(`SELECT m.id, m.subject, m.preview, m.delivered_at, c.name AS from_name
FROM missive.messages m
JOIN public.project_conversations pc ON m.conversation_id = pc.m_conversation_id
LEFT JOIN missive.contacts c ON m.from_contact_id = c.id
WHERE pc.tw_project_id = %s
ORDER BY m.delivered_at DESC LIMIT 5`, pidLit)

	filesSQL := fmt.Sprintf(`SELECT f.id, f.full_path, fc.storage_path, f.db_created_at
FROM public.files f
JOIN public.file_contents fc ON f.content_hash = fc.content_hash
WHERE f.project_id = %s AND f.deleted_at IS NULL
ORDER BY f.db_created_at DESC LIMIT 5`, pidLit)

	contactsSQL := fmt.Sprintf(`SELECT c.name, c.email, COUNT(*) AS msg_count
FROM missive.messages m
JOIN public.project_conversations pc ON m.conversation_id = pc.m_conversation_id
JOIN missive.contacts c ON m.from_contact_id = c.id
WHERE pc.tw_project_id = %s
GROUP BY c.name, c.email
ORDER BY msg_count DESC LIMIT 5`, pidLit)

	activitySQL := fmt.Sprintf(`WITH combined AS (
    SELECT 'task' AS type, name AS title, updated_at AS ts FROM teamwork.tasks WHERE project_id = %s
    UNION ALL
    SELECT 'email', m.subject, m.delivered_at
    FROM missive.messages m
    JOIN public.project_conversations pc ON m.conversation_id = pc.m_conversation_id
    WHERE pc.tw_project_id = %s
    UNION ALL
    SELECT 'file', f.full_path, f.db_created_at
    FROM public.files f
    WHERE f.project_id = %s AND f.deleted_at IS NULL
)
SELECT DISTINCT ON (DATE_TRUNC('hour', ts), type, LEFT(title, 50))
       type, title, ts
FROM combined WHERE ts IS NOT NULL
ORDER BY DATE_TRUNC('hour', ts) DESC, type, LEFT(title, 50), ts DESC
LIMIT 10`, pidLit, pidLit, pidLit)

	out := &DashboardOutput{}

	stats := g.Query(ctx, QueryInput{SQL: statsSQL})
	if stats.Error != "" {
		return &DashboardOutput{Error: stats.Error}
	}
	taskStats := map[string]any{}
	if len(stats.Rows) == 1 {
		taskStats = stats.Rows[0]
	}
	out.Project = map[string]any{"id": pid, "name": pname, "tasks": taskStats}

	sections := []struct {
		sql  string
		dest *[]map[string]any
	}{
		{activitySQL, &out.RecentActivity},
		{tasksSQL, &out.RecentTasks},
		{emailsSQL, &out.RecentEmails},
		{filesSQL, &out.RecentFiles},
		{contactsSQL, &out.KeyContacts},
	}
	for _, section := range sections {
		result := g.Query(ctx, QueryInput{SQL: section.sql})
		if result.Error != "" {
			return &DashboardOutput{Error: result.Error}
		}
		*section.dest = result.Rows
	}
	return out
}
