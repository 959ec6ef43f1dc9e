package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiClient — минимальный HTTP-клиент к публичному API маркетплейса.
type apiClient struct {
	baseURL string
	http    *http.Client
}

type vendorCreated struct {
	VendorID int64 `json:"vendorId"`
}

type productCreated struct {
	ProductID int64 `json:"productId"`
	Stock     *int  `json:"stock"`
}

type userCreated struct {
	UserID int64 `json:"userId"`
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func newAPIClient(baseURL string, httpClient *http.Client) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *apiClient) createVendor(ctx context.Context, name, companyReg string) (int64, error) {
	var out vendorCreated
	_, err := c.doJSON(ctx, http.MethodPost, "/vendors", map[string]any{
		"vendorName": name,
		"companyReg": companyReg,
	}, http.StatusCreated, &out)
	return out.VendorID, err
}

func (c *apiClient) createProduct(ctx context.Context, vendorID int64, stock *int, price string) (int64, error) {
	var out productCreated
	_, err := c.doJSON(ctx, http.MethodPost, "/products", map[string]any{
		"vendorId":    vendorID,
		"stock":       stock,
		"price":       price,
		"location":    "Load Test",
		"description": "load test product",
	}, http.StatusCreated, &out)
	return out.ProductID, err
}

func (c *apiClient) registerUser(ctx context.Context, username, email, password string) (int64, error) {
	var out userCreated
	_, err := c.doJSON(ctx, http.MethodPost, "/auth/register", map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}, http.StatusCreated, &out)
	return out.UserID, err
}

func (c *apiClient) productStock(ctx context.Context, productID int64) (*int, error) {
	var out productCreated
	_, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/products/%d", productID), nil, http.StatusOK, &out)
	return out.Stock, err
}

// purchase возвращает HTTP-статус ответа; ошибка только транспортная.
func (c *apiClient) purchase(ctx context.Context, userID, productID int64, quantity int) (int, error) {
	body, err := json.Marshal(map[string]any{
		"userId":    userID,
		"productId": productID,
		"quantity":  quantity,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/purchases", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, in any, wantStatus int, out any) (int, error) {
	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode != wantStatus {
		return resp.StatusCode, &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
