package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var apiURL string

// jobCmd returns the job parent command
func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "job",
		Aliases: []string{"jobs"},
		Short:   "Manage async analysis jobs",
		Long:    "Submit, list, and manage async analysis jobs via the API server.",
	}

	cmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")

	cmd.AddCommand(jobSubmitCmd())
	cmd.AddCommand(jobListCmd())
	cmd.AddCommand(jobStatusCmd())
	cmd.AddCommand(jobCancelCmd())
	cmd.AddCommand(jobRetryCmd())

	return cmd
}

// jobSubmitCmd queues an analysis on the server
func jobSubmitCmd() *cobra.Command {
	var (
		project    string
		root       string
		repoURL    string
		branch     string
		language   string
		depth      string
		include    []string
		exclude    []string
		unresolved string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an analysis job",
		Long: `Submit an analysis job. The source is either a path visible to the
workers (--root) or a repository the workers clone (--repo).

Examples:
  # Analyze a tree mounted on the workers
  codeatlas job submit --project shop --root /srv/checkouts/shop

  # Clone and analyze a repository
  codeatlas job submit --project shop --repo https://github.com/acme/shop --branch main

  # With analysis options
  codeatlas job submit --project shop --repo https://github.com/acme/shop --language kotlin --depth deep`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" {
				return fmt.Errorf("--project is required")
			}
			if root == "" && repoURL == "" {
				return fmt.Errorf("one of --root or --repo is required")
			}

			payload := map[string]interface{}{
				"project": project,
			}
			if root != "" {
				payload["root"] = root
			}
			if repoURL != "" {
				payload["repo_url"] = repoURL
			}
			if branch != "" {
				payload["branch"] = branch
			}
			if language != "" {
				payload["language"] = language
			}
			if depth != "" {
				payload["depth"] = depth
			}
			if len(include) > 0 {
				payload["include"] = include
			}
			if len(exclude) > 0 {
				payload["exclude"] = exclude
			}
			if unresolved != "" {
				payload["unresolved"] = unresolved
			}

			resp, err := postJSON(apiURL+"/api/v1/analyses", payload)
			if err != nil {
				return err
			}

			if jsonOutput {
				fmt.Println(string(resp))
				return nil
			}

			var job jobResponse
			if err := json.Unmarshal(resp, &job); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			fmt.Printf("Analysis queued!\n")
			fmt.Printf("  ID:      %s\n", job.ID)
			fmt.Printf("  Project: %s\n", job.Project)
			fmt.Printf("  Status:  %s\n", job.Status)
			fmt.Printf("\nCheck status with: codeatlas job status %s\n", job.ID)

			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name (required)")
	cmd.Flags().StringVar(&root, "root", "", "Source tree path visible to the workers")
	cmd.Flags().StringVar(&repoURL, "repo", "", "Repository URL to clone")
	cmd.Flags().StringVar(&branch, "branch", "", "Git branch")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Source language (kotlin, python, javascript, typescript, auto)")
	cmd.Flags().StringVarP(&depth, "depth", "d", "", "Analysis depth (basic, medium, deep)")
	cmd.Flags().StringSliceVar(&include, "include", nil, "Only analyze paths containing one of these fragments")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Skip paths containing one of these fragments")
	cmd.Flags().StringVar(&unresolved, "unresolved", "", "Unresolved call handling (drop, stub)")

	return cmd
}

// jobListCmd lists jobs
func jobListCmd() *cobra.Command {
	var (
		status  string
		project string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Long: `List jobs with optional filters.

Examples:
  codeatlas job list
  codeatlas job list --status running
  codeatlas job list --project shop --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint := "/api/v1/analyses"
			params := []string{}

			if status != "" {
				params = append(params, "status="+status)
			}
			if project != "" {
				params = append(params, "project="+project)
			}
			if limit > 0 {
				params = append(params, fmt.Sprintf("limit=%d", limit))
			}

			if len(params) > 0 {
				endpoint += "?" + strings.Join(params, "&")
			}

			resp, err := getJSON(apiURL + endpoint)
			if err != nil {
				return err
			}

			if jsonOutput {
				fmt.Println(string(resp))
				return nil
			}

			var jobs []jobResponse
			if err := json.Unmarshal(resp, &jobs); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			printJobTable(jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed)")
	cmd.Flags().StringVar(&project, "project", "", "Filter by project")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")

	return cmd
}

// jobStatusCmd gets job status
func jobStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Get job status",
		Long: `Get detailed status of a job including child jobs.

Examples:
  codeatlas job status 550e8400-e29b-41d4-a716-446655440000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			endpoint := fmt.Sprintf("/api/v1/analyses/%s", jobID)

			resp, err := getJSON(apiURL + endpoint)
			if err != nil {
				return err
			}

			if jsonOutput {
				fmt.Println(string(resp))
				return nil
			}

			var status jobStatusResponse
			if err := json.Unmarshal(resp, &status); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			printJobDetail(status.Job)

			if len(status.Children) > 0 {
				fmt.Println("\nChild Jobs:")
				printJobTable(status.Children)
			}

			return nil
		},
	}

	return cmd
}

// jobCancelCmd cancels a job
func jobCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			endpoint := fmt.Sprintf("/api/v1/analyses/%s/cancel", jobID)

			resp, err := postJSON(apiURL+endpoint, nil)
			if err != nil {
				return err
			}

			if jsonOutput {
				fmt.Println(string(resp))
				return nil
			}

			fmt.Printf("Job %s cancelled.\n", jobID)
			return nil
		},
	}

	return cmd
}

// jobRetryCmd requeues a job awaiting retry
func jobRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a job awaiting retry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			endpoint := fmt.Sprintf("/api/v1/analyses/%s/retry", jobID)

			resp, err := postJSON(apiURL+endpoint, nil)
			if err != nil {
				return err
			}

			if jsonOutput {
				fmt.Println(string(resp))
				return nil
			}

			var job jobResponse
			if err := json.Unmarshal(resp, &job); err != nil {
				fmt.Printf("Job %s queued for retry.\n", jobID)
				return nil
			}

			fmt.Printf("Job %s queued for retry.\n", jobID)
			fmt.Printf("  Status: %s\n", job.Status)
			return nil
		},
	}

	return cmd
}

// Response types
type jobResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Priority     int             `json:"priority"`
	Project      string          `json:"project"`
	ParentJobID  *string         `json:"parent_job_id,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	StartedAt    *string         `json:"started_at,omitempty"`
	CompletedAt  *string         `json:"completed_at,omitempty"`
	WorkerID     *string         `json:"worker_id,omitempty"`
}

type jobStatusResponse struct {
	Job      *jobResponse  `json:"job"`
	Children []jobResponse `json:"children,omitempty"`
}

// HTTP helpers
func getJSON(url string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(body, &errResp) == nil {
			if msg, ok := errResp["error"]; ok {
				return nil, fmt.Errorf("API error: %s", msg)
			}
		}
		return nil, fmt.Errorf("API error: %s", resp.Status)
	}

	return body, nil
}

func postJSON(url string, data interface{}) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest("POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			if msg, ok := errResp["error"]; ok {
				return nil, fmt.Errorf("API error: %s", msg)
			}
		}
		return nil, fmt.Errorf("API error: %s", resp.Status)
	}

	return respBody, nil
}

// Output helpers
func printJobTable(jobs []jobResponse) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tPROJECT\tSTATUS\tCREATED\tWORKER")

	for _, j := range jobs {
		created := formatTime(j.CreatedAt)
		worker := "-"
		if j.WorkerID != nil {
			worker = *j.WorkerID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateJobID(j.ID, 8), j.Type, j.Project, j.Status, created, truncateJobID(worker, 12))
	}
	w.Flush()
}

func printJobDetail(j *jobResponse) {
	fmt.Printf("Job: %s\n", j.ID)
	fmt.Printf("  Type:       %s\n", j.Type)
	fmt.Printf("  Project:    %s\n", j.Project)
	fmt.Printf("  Status:     %s\n", j.Status)
	fmt.Printf("  Priority:   %d\n", j.Priority)
	fmt.Printf("  Retries:    %d/%d\n", j.RetryCount, j.MaxRetries)
	fmt.Printf("  Created:    %s\n", j.CreatedAt)

	if j.StartedAt != nil {
		fmt.Printf("  Started:    %s\n", *j.StartedAt)
	}
	if j.CompletedAt != nil {
		fmt.Printf("  Completed:  %s\n", *j.CompletedAt)
	}
	if j.WorkerID != nil {
		fmt.Printf("  Worker:     %s\n", *j.WorkerID)
	}
	if j.ErrorMessage != nil {
		fmt.Printf("  Error:      %s\n", *j.ErrorMessage)
	}
	if len(j.Result) > 0 {
		fmt.Printf("  Result:     %s\n", string(j.Result))
	}
}

func formatTime(t string) string {
	parsed, err := time.Parse("2006-01-02T15:04:05Z", t)
	if err != nil {
		return t
	}
	return parsed.Format("Jan 02 15:04")
}

func truncateJobID(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
