package sui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func rpcServer(t *testing.T, handle func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handle(req),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClient_GetLatestCheckpointSequenceNumber(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "sui_getLatestCheckpointSequenceNumber" {
			t.Errorf("unexpected method %s", req.Method)
		}
		return "123456"
	})

	seq, err := NewHTTPClient(server.URL).GetLatestCheckpointSequenceNumber(context.Background())
	if err != nil {
		t.Fatalf("GetLatestCheckpointSequenceNumber: %v", err)
	}
	if seq != 123456 {
		t.Errorf("expected 123456, got %d", seq)
	}
}

func TestHTTPClient_QueryEvents(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "suix_queryEvents" {
			t.Errorf("unexpected method %s", req.Method)
		}
		if len(req.Params) != 4 {
			t.Errorf("expected 4 params, got %d", len(req.Params))
		}
		if desc, _ := req.Params[3].(bool); desc {
			t.Error("events must be queried in ascending order")
		}
		return map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"id":          map[string]string{"txDigest": "d1", "eventSeq": "0"},
					"packageId":   "0xpkg",
					"type":        "0xpkg::cross_chain_auction::OrderFilled",
					"parsedJson":  map[string]interface{}{"order_id": "0x01"},
					"timestampMs": "1700000000000",
				},
			},
			"nextCursor":  map[string]string{"txDigest": "d1", "eventSeq": "0"},
			"hasNextPage": true,
		}
	})

	page, err := NewHTTPClient(server.URL).QueryEvents(context.Background(), MoveModuleFilter{Package: "0xpkg", Module: "cross_chain_auction"}, nil, 10)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].Type != "0xpkg::cross_chain_auction::OrderFilled" {
		t.Errorf("unexpected page: %+v", page)
	}
	if !page.HasNextPage || page.NextCursor == nil || page.NextCursor.TxDigest != "d1" {
		t.Errorf("unexpected paging: %+v", page)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "7"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(5*time.Millisecond), WithMaxDelay(10*time.Millisecond))
	seq, err := client.GetLatestCheckpointSequenceNumber(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if seq != 7 || attempts.Load() != 3 {
		t.Errorf("seq=%d attempts=%d", seq, attempts.Load())
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "invalid params"},
		})
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond)).GetLatestCheckpointSequenceNumber(context.Background())
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32602 {
		t.Errorf("code = %d", rpcErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("RPC errors must not be retried, attempts = %d", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Second))
	if _, err := client.GetLatestCheckpointSequenceNumber(ctx); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
