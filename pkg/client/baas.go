package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/client/dto"
)

const (
	startEndpoint   = "/api/async/start"
	messageEndpoint = "/api/async/message"
)

type baasClient struct {
	baasURL    string
	baasApiKey string
	timeout    time.Duration
	log        *zap.Logger
}

// Client talks to a remote Browser-as-a-Service. RunAsync opens a session and
// keeps its event stream open until the returned wait func drains it; Message
// runs one program inside that session.
type Client interface {
	RunAsync(ctx context.Context, baasRequest dto.Config) (*dto.BrowserMessageOut, func(), error)
	Message(ctx context.Context, message dto.BrowserMessageIn) (*dto.BrowserMessageOut, error)
}

func NewClient(baasURL, baasKey string, timeout time.Duration, log *zap.Logger) Client {
	return &baasClient{
		baasURL:    strings.TrimSuffix(baasURL, "/"),
		baasApiKey: baasKey,
		timeout:    timeout,
		log:        log,
	}
}

func (o *baasClient) post(ctx context.Context, headers map[string]string, endpoint string, timeout string, body any) (*http.Response, error) {
	timeoutDuration := o.timeout
	if dur, err := time.ParseDuration(timeout); err == nil {
		timeoutDuration = dur
	}
	client := &http.Client{Timeout: timeoutDuration}

	reqBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal baas request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baasURL+endpoint, bytes.NewReader(reqBodyBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to init baas request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", o.baasApiKey))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	o.log.Debug("baas request", zap.String("endpoint", endpoint), zap.Duration("timeout", timeoutDuration))
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errors.Errorf("baas %s returned status code %d: %s", endpoint, resp.StatusCode, string(readBytes(resp.Body)))
	}
	return resp, nil
}

func (o *baasClient) Message(ctx context.Context, msg dto.BrowserMessageIn) (*dto.BrowserMessageOut, error) {
	msg.RequestID = lo.RandomString(10, lo.LowerCaseLettersCharset)
	o.log.Debug("baas message", zap.Any("message", msg.Sanitized()))
	resp, err := o.post(ctx, nil, messageEndpoint, msg.Timeout, msg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to make baas request")
	}
	defer resp.Body.Close()

	respBytes := readBytes(resp.Body)
	messages, err := decodeMessages(respBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal baas response: %s", string(respBytes))
	}

	// the stream may carry events of other requests in the same session
	baasResponse, found := lo.Find(messages, func(msgOut dto.BrowserMessageOut) bool {
		return msg.RequestID == msgOut.RequestID
	})
	if !found {
		return nil, errors.Errorf("failed to find message with the same RequestID: %q", msg.RequestID)
	}
	if lo.FromPtr(baasResponse.Meta.Error) != "" {
		return nil, errors.Errorf("baas returned error: %s, baas RequestUID: %q", lo.FromPtr(baasResponse.Meta.Error), baasResponse.Meta.RequestUID)
	}
	return &baasResponse, nil
}

// decodeMessages reads a sequence of concatenated or newline separated JSON
// objects.
func decodeMessages(data []byte) ([]dto.BrowserMessageOut, error) {
	var res []dto.BrowserMessageOut
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var msg dto.BrowserMessageOut
		err := dec.Decode(&msg)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		res = append(res, msg)
	}
}

func (o *baasClient) RunAsync(ctx context.Context, baasRequest dto.Config) (*dto.BrowserMessageOut, func(), error) {
	resp, err := o.post(ctx, map[string]string{
		"Accept": "text/event-stream",
	}, startEndpoint, baasRequest.Browser.Timeout, baasRequest)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to make baas request")
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		resp.Body.Close()
		return nil, nil, errors.Wrapf(err, "error reading response")
	}

	var baasResponse dto.BrowserMessageOut
	line = strings.TrimSpace(line)
	if err := json.Unmarshal([]byte(line), &baasResponse); err != nil {
		resp.Body.Close()
		return nil, nil, errors.Wrapf(err, "failed to unmarshal baas response: %s", line)
	}
	if lo.FromPtr(baasResponse.Meta.Error) != "" {
		resp.Body.Close()
		return nil, nil, errors.Errorf("baas returned error: %s, baas RequestUID: %q", lo.FromPtr(baasResponse.Meta.Error), baasResponse.Meta.RequestUID)
	}
	return &baasResponse, func() {
		defer resp.Body.Close()
		for {
			event, err := reader.ReadString('\n')
			if event = strings.TrimSpace(event); event != "" {
				o.log.Debug("baas session event", zap.String("event", event))
			}
			if err != nil {
				return
			}
		}
	}, nil
}

func readBytes(stream io.Reader) []byte {
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(stream)
	return buf.Bytes()
}
