package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
)

const createUploadURLPath = "/rest/uploads/create_upload_url?version=2.18&source=default"

// uploadDescriptor is the presigned upload returned by the service: a target
// bucket URL, the signing fields to echo into the multipart body and the
// final object URL.
type uploadDescriptor struct {
	Fields      map[string]string `json:"fields"`
	S3BucketURL string            `json:"s3_bucket_url"`
	S3ObjectURL string            `json:"s3_object_url"`
}

type createUploadReq struct {
	ContentType string `json:"content_type"`
	FileSize    int    `json:"file_size"`
	Filename    string `json:"filename"`
	ForceImage  bool   `json:"force_image"`
	Source      string `json:"source"`
}

// Image uploads land on an image host whose private delivery path carries a
// signature segment which must be normalized away.
var imageDeliveryPathRe = regexp.MustCompile(`/private/s--.*?--/v\d+/user_uploads/`)

// uploadFiles runs the two-phase upload for each file and returns the
// durable attachment URLs in filename order. The first failure aborts the
// whole batch.
func (c *Client) uploadFiles(ctx context.Context, files map[string][]byte) ([]string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	uploaded := make([]string, 0, len(files))
	for _, name := range names {
		uploadedURL, err := c.uploadFile(ctx, name, files[name])
		if err != nil {
			return nil, err
		}
		if c.debug {
			ancli.PrintOK(fmt.Sprintf("uploaded '%v' -> %v\n", name, uploadedURL))
		}
		uploaded = append(uploaded, uploadedURL)
	}
	return uploaded, nil
}

func (c *Client) uploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	desc, err := c.presignUpload(ctx, filename, contentType, len(data))
	if err != nil {
		return "", err
	}

	body, partContentType, err := multipartBody(desc.Fields, filename, contentType, data)
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body for '%v': %w", filename, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, desc.S3BucketURL, body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", partContentType)
	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload '%v': %w", filename, err)
	}
	defer res.Body.Close()
	resBody, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", UploadError{Filename: filename, Status: res.Status, Body: string(resBody)}
	}

	if !strings.Contains(desc.S3ObjectURL, "image/upload") {
		return desc.S3ObjectURL, nil
	}
	// Image host: the object URL lives in the upload response instead, with
	// a signed delivery path which must be rewritten to its canonical form.
	var imageRes struct {
		SecureURL string `json:"secure_url"`
	}
	if err := json.Unmarshal(resBody, &imageRes); err != nil {
		return "", fmt.Errorf("failed to decode image upload response for '%v': %w", filename, err)
	}
	return imageDeliveryPathRe.ReplaceAllString(imageRes.SecureURL, "/private/user_uploads/"), nil
}

func (c *Client) presignUpload(ctx context.Context, filename, contentType string, size int) (uploadDescriptor, error) {
	var desc uploadDescriptor
	payload, err := json.Marshal(createUploadReq{
		ContentType: contentType,
		FileSize:    size,
		Filename:    filename,
		ForceImage:  false,
		Source:      "default",
	})
	if err != nil {
		return desc, fmt.Errorf("failed to encode presign request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.BaseURL+createUploadURLPath, bytes.NewReader(payload))
	if err != nil {
		return desc, fmt.Errorf("failed to create presign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.client.Do(req)
	if err != nil {
		return desc, fmt.Errorf("failed to presign upload for '%v': %w", filename, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return desc, UploadError{Filename: filename, Status: res.Status, Body: string(body)}
	}
	if err := json.NewDecoder(res.Body).Decode(&desc); err != nil {
		return desc, fmt.Errorf("failed to decode presign response for '%v': %w", filename, err)
	}
	return desc, nil
}

// multipartBody lays out the signing fields first and the raw file content
// last, which is the order the bucket endpoint requires.
func multipartBody(fields map[string]string, filename, contentType string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fieldNames := make([]string, 0, len(fields))
	for name := range fields {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)
	for _, name := range fieldNames {
		if err := w.WriteField(name, fields[name]); err != nil {
			return nil, "", err
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%v"`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
