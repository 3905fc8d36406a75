package httpapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// Application is the job board's view of an application
type Application struct {
	ID               string          `json:"id"`
	PostID           string          `json:"postId"`
	JobTitle         string          `json:"jobTitle"`
	AuthorUserID     string          `json:"authorId"`
	ApplicantUserID  string          `json:"applicantId"`
	ApplicantAddress string          `json:"applicantAddress"`
	Salary           decimal.Decimal `json:"salary"`
}

// JobsClient reads job board records
type JobsClient struct {
	c *Client
}

func NewJobsClient(c *Client) *JobsClient {
	return &JobsClient{c: c}
}

func (j *JobsClient) Application(ctx context.Context, id string) (*Application, error) {
	var resp Application
	err := j.c.do(ctx, request{method: http.MethodGet, path: "/api/job/applications/" + url.PathEscape(id), auth: true}, &resp)
	if err != nil {
		return nil, serviceError(err)
	}
	return &resp, nil
}
