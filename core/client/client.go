/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the mux router.
It is perfectly suited for unit tests. With NewWithURL it talks to a
remote backend instead.
*/
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/docuform-tech/docuform/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	router     http.Handler
	httpClient *http.Client
	url        string
	token      string
	actor      *access.Actor
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the
// backend, through the router.
//
// WithActor() adds an actor to the request context.
// WithContext() specifies a different base context all together.
func NewWithRouter(router http.Handler) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithToken returns a new client with a bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithActor returns a new client acting as the given actor (this works
// only directly against the router, for a normal client use WithToken())
func (c Client) WithActor(actor access.Actor) Client {
	c.actor = &actor
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	c.defaultHeaders = headers
	return c
}

// Context returns the base context requests are made with
func (c Client) Context() context.Context {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if c.actor != nil {
		ctx = access.ContextWithActor(ctx, *c.actor)
	}
	return ctx
}

// Post sends body as json to path. Expects http.StatusOK or
// http.StatusNoContent as response, otherwise it flags an error.
//
// body can also be a []byte, result can also be a raw *[]byte.
// result can be nil. Returns the actual http status code.
func (c Client) Post(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPost, path, "", body, result)
}

// Put sends body as json to path. Expects http.StatusOK or
// http.StatusNoContent as response, otherwise it flags an error.
func (c Client) Put(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPut, path, "", body, result)
}

// Delete sends body as json to path with the DELETE method. Expects
// http.StatusNoContent as response, otherwise it flags an error.
func (c Client) Delete(path string, body interface{}) (int, error) {
	return c.do(http.MethodDelete, path, "", body, nil)
}

// PostMultipart posts a multipart form with a json "schema_in" part and a
// "file" part to path.
func (c Client) PostMultipart(path string, body interface{}, filename string, data []byte, result interface{}) (int, error) {
	return c.multipart(http.MethodPost, path, body, filename, data, result)
}

// PutMultipart is PostMultipart with the PUT method.
func (c Client) PutMultipart(path string, body interface{}, filename string, data []byte, result interface{}) (int, error) {
	return c.multipart(http.MethodPut, path, body, filename, data, result)
}

func (c Client) multipart(method, path string, body interface{}, filename string, data []byte, result interface{}) (int, error) {
	j, err := json.Marshal(body)
	if err != nil {
		return http.StatusBadRequest, err
	}
	var buffer bytes.Buffer
	w := multipart.NewWriter(&buffer)
	if err := w.WriteField("schema_in", string(j)); err != nil {
		return http.StatusBadRequest, err
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return http.StatusBadRequest, err
	}
	if _, err := fw.Write(data); err != nil {
		return http.StatusBadRequest, err
	}
	w.Close()
	return c.request(method, path, w.FormDataContentType(), buffer.Bytes(), result)
}

func (c Client) do(method, path, contentType string, body interface{}, result interface{}) (int, error) {
	var err error
	j, ok := body.([]byte)
	if !ok && body != nil {
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, err
		}
	}
	return c.request(method, path, contentType, j, result)
}

func (c Client) request(method, path, contentType string, body []byte, result interface{}) (int, error) {
	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, bytes.NewReader(body))
	if err != nil {
		return http.StatusBadRequest, err
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}

	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		if c.token != "" {
			r.Header.Add("Authorization", "Bearer "+c.token)
		}
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}
	status := res.StatusCode

	if status != http.StatusOK && status != http.StatusNoContent {
		msg := strings.TrimSpace(string(resBody))
		if msg == "" {
			return status, fmt.Errorf("%s got status=%d", method, status)
		}
		return status, errors.New(msg)
	}
	if len(resBody) > 0 && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, err
}
