package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/media-dl-go/internal/domain"
)

// completedDownload is what the server reports for a finished job
type completedDownload struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
}

// requestDownload posts the job and follows its progress until the server
// reports the artifact
func requestDownload(client *http.Client, baseURL string, platform domain.Platform, url string, kind domain.OutputKind, progress io.Writer) (*completedDownload, error) {
	payload, err := json.Marshal(domain.DownloadRequest{SourceURL: url, OutputKind: kind})
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/api/download/"+string(platform), "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/x-ndjson" {
		return readProgress(resp.Body, progress)
	}

	var summary completedDownload
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return &summary, nil
}

// readProgress prints each progress event and returns the completed one
func readProgress(r io.Reader, out io.Writer) (*completedDownload, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev domain.ProgressEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("invalid progress event: %w", err)
		}
		fmt.Fprintf(out, "[%3d%%] %s\n", ev.Percent, ev.Status)

		switch ev.Status {
		case domain.ProgressCompleted:
			return &completedDownload{FileName: ev.FileName, DownloadURL: ev.DownloadURL}, nil
		case domain.ProgressFailed:
			return nil, fmt.Errorf("download failed: %s", ev.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("progress stream ended before completion")
}

// saveArtifact retrieves the artifact into dir and returns the file path
func saveArtifact(client *http.Client, baseURL string, done *completedDownload, dir string) (string, error) {
	target := done.DownloadURL
	if strings.HasPrefix(target, "/") {
		target = baseURL + target
	}

	resp, err := client.Get(target)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}

	name := done.FileName
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("server sent no file name")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	return path, f.Close()
}

func errorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
