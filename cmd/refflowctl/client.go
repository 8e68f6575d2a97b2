package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// apiFlags are shared by every subcommand: where the server is and who the
// caller claims to be. The capability header mirrors what the authorization
// collaborator would attach in production.
type apiFlags struct {
	server       string
	actor        string
	capabilities string
}

func defaultServer() string {
	if addr := os.Getenv("REFFLOW_SERVER"); addr != "" {
		return addr
	}
	return "http://localhost:8080"
}

func (a *apiFlags) request(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, strings.TrimRight(a.server, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", a.actor)
	if a.capabilities != "" {
		req.Header.Set("X-Actor-Capabilities", a.capabilities)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Code != "" {
			return nil, fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return data, nil
}

// printJSON re-indents a response for the terminal.
func printJSON(data []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(buf.String())
}
