package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/juho05/log"
)

const (
	subjectsQuery = `query studentSubjects{studentSubjects{id name}}`
	outlineQuery  = `query courseOutline($s:String){courseOutline(subjectId:$s){id:subjectId educationPeriod units{unitId:id displayName title description number resources{id:uid displayName description icon} subunits{subunitId:id displayName number displayNumber iconName resources{id:uid displayName description icon}}}}}`
)

// ClassroomService fetches course data from the AP Classroom GraphQL API on
// behalf of a logged in user. Results are memoized per user.
type ClassroomService interface {
	Subjects(ctx context.Context, c *Credentials) (json.RawMessage, error)
	Outline(ctx context.Context, c *Credentials, subjectID string) (json.RawMessage, error)
}

type classroomArg struct {
	creds     *Credentials
	subjectID string
}

type classroomService struct {
	client   *http.Client
	apiURL   string
	auth     AuthService
	subjects CachedFunc[classroomArg, json.RawMessage]
	outline  CachedFunc[classroomArg, json.RawMessage]
}

func NewClassroomService(client *http.Client, apiURL string, auth AuthService, cache *Cache, ttl time.Duration) ClassroomService {
	s := &classroomService{
		client: client,
		apiURL: strings.TrimSuffix(apiURL, "/"),
		auth:   auth,
	}
	s.subjects = Cached(cache, "subjects", ttl, func(classroomArg) string { return "" }, func(ctx context.Context, arg classroomArg) (json.RawMessage, error) {
		return s.query(ctx, arg.creds, "fym", "studentSubjects", subjectsQuery, nil)
	})
	s.outline = Cached(cache, "outline", ttl, func(arg classroomArg) string { return arg.subjectID }, func(ctx context.Context, arg classroomArg) (json.RawMessage, error) {
		return s.query(ctx, arg.creds, "units", "courseOutline", outlineQuery, map[string]any{"s": arg.subjectID})
	})
	return s
}

func (s *classroomService) Subjects(ctx context.Context, c *Credentials) (json.RawMessage, error) {
	owner, err := s.owner(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("subjects: %w", err)
	}
	return s.subjects(ctx, owner, classroomArg{creds: c})
}

func (s *classroomService) Outline(ctx context.Context, c *Credentials, subjectID string) (json.RawMessage, error) {
	owner, err := s.owner(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("outline: %w", err)
	}
	return s.outline(ctx, owner, classroomArg{creds: c, subjectID: subjectID})
}

// owner makes sure the upstream user name is known so it can scope the cache.
func (s *classroomService) owner(ctx context.Context, c *Credentials) (string, error) {
	if c.OwnerID() == "" {
		err := s.auth.EnsureAWS(ctx, c)
		if err != nil {
			return "", err
		}
	}
	return c.OwnerID(), nil
}

func (s *classroomService) query(ctx context.Context, c *Credentials, endpoint, operation, query string, variables map[string]any) (json.RawMessage, error) {
	token, err := s.auth.AccessToken(ctx, c)
	if err != nil {
		return nil, err
	}

	type request struct {
		OperationName string         `json:"operationName"`
		Query         string         `json:"query"`
		Variables     map[string]any `json:"variables,omitempty"`
	}
	body, err := json.Marshal(request{
		OperationName: operation,
		Query:         query,
		Variables:     variables,
	})
	if err != nil {
		return nil, fmt.Errorf("graphql %s: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/"+endpoint+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("graphql %s: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql %s: %w", operation, err)
	}
	defer res.Body.Close()

	var response struct {
		Data   map[string]json.RawMessage `json:"data"`
		Errors json.RawMessage            `json:"errors"`
	}
	err = json.NewDecoder(res.Body).Decode(&response)
	if err != nil {
		return nil, fmt.Errorf("graphql %s: decode response (status %d): %w", operation, res.StatusCode, err)
	}
	data, ok := response.Data[operation]
	if !ok {
		log.Errorf("GraphQL request %s failed (status %d): %s", operation, res.StatusCode, response.Errors)
		return nil, fmt.Errorf("graphql %s: %w: no data in response", operation, ErrUpstream)
	}
	return data, nil
}
