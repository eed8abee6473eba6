package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StateResponse — документ сущности из API.
type StateResponse struct {
	ID    string          `json:"id"`
	Etag  string          `json:"etag"`
	State json.RawMessage `json:"state"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	ProducerID        string          `json:"producer_id,omitempty"`
	ConsumerID        string          `json:"consumer_id"`
	StateID           string          `json:"state_id"`
	ProducerTimestamp string          `json:"producer_timestamp"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

// DeploymentPlanResponse — текущий план оркестратора.
type DeploymentPlanResponse struct {
	OrchestratorID string          `json:"orchestrator_id"`
	Etag           string          `json:"etag"`
	Plan           json.RawMessage `json:"plan"`
}

// SubmitPlanResponse — план принят в очередь.
type SubmitPlanResponse struct {
	OrchestratorID string   `json:"orchestrator_id"`
	ServiceIDs     []string `json:"service_ids"`
	AgentIDs       []string `json:"agent_ids"`
}

// SetPropertyResponse — task свойства поставлена агенту instance.
type SetPropertyResponse struct {
	InstanceID string `json:"instance_id"`
	AgentID    string `json:"agent_id"`
	Key        string `json:"key"`
	Posted     bool   `json:"posted"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для ServiceGrid API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- States ---

// ListStates возвращает ids документов с префиксом (относительно корня схемы).
func (c *Client) ListStates(prefix string) ([]string, error) {
	params := url.Values{}
	if prefix != "" {
		params.Set("prefix", prefix)
	}

	var ids []string
	err := c.list("/api/v1/states", params, &ids)
	return ids, err
}

// GetState возвращает документ по id.
// Принимает как полный id, так и путь относительно корня схемы.
func (c *Client) GetState(id string) (*StateResponse, error) {
	var state StateResponse
	err := c.get("/api/v1/states/"+relativeID(id), &state)
	return &state, err
}

// SetInstanceProperty просит агента instance записать свойство.
// Пустое value удаляет его.
func (c *Client) SetInstanceProperty(instanceID, key, value string) (*SetPropertyResponse, error) {
	body := map[string]string{
		"instance_id": relativeID(instanceID),
		"key":         key,
		"value":       value,
	}

	var result SetPropertyResponse
	if err := c.doData(http.MethodPost, "/api/v1/instance-properties", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// --- Tasks ---

// ListTasks возвращает tasks в очереди consumer'а.
func (c *Client) ListTasks(consumer string) ([]TaskResponse, error) {
	params := url.Values{}
	params.Set("consumer", consumer)

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// --- Deployment plan ---

// GetDeploymentPlan возвращает текущий план оркестратора.
func (c *Client) GetDeploymentPlan() (*DeploymentPlanResponse, error) {
	var plan DeploymentPlanResponse
	err := c.get("/api/v1/deployment-plan", &plan)
	return &plan, err
}

// ApplyPlanFile отправляет YAML-файл сервисов.
func (c *Client) ApplyPlanFile(data []byte) (*SubmitPlanResponse, error) {
	resp, err := c.doRaw(http.MethodPost, "/api/v1/deployment-plan", "application/yaml", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result SubmitPlanResponse
	if err := c.decodeData(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// relativeID отрезает схему и хост от полного id документа.
func relativeID(id string) string {
	u, err := url.Parse(id)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimPrefix(id, "/")
	}
	return strings.TrimPrefix(u.Path, "/")
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decodeData(resp, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	if body == nil {
		return c.doRaw(method, path, "", nil)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.doRaw(method, path, "application/json", bytes.NewReader(data))
}

func (c *Client) doRaw(method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
