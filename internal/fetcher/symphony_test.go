package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:           baseURL,
		Timeout:           time.Second,
		MaxAttempts:       3,
		RetryBaseDelay:    time.Millisecond,
		RequestsPerSecond: 1000,
		FetchWorkers:      4,
	}, noopLogger())
}

func TestFetchJoinsPerValidatorRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/cosmos/staking/v1beta1/validators":
			if r.URL.Query().Get("status") != "BOND_STATUS_BONDED" {
				t.Errorf("status 参数错误: %s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"validators": []map[string]any{
					{"operator_address": "valA", "description": map[string]string{"moniker": "Alpha"}, "tokens": "1000000"},
					{"operator_address": "valB", "description": map[string]string{"moniker": "Beta"}, "tokens": "2000000"},
				},
				"pagination": map[string]any{"next_key": ""},
			})
		case "/symphony/oracle/v1beta1/validators/valA/miss":
			_ = json.NewEncoder(w).Encode(map[string]string{"miss_counter": "42"})
		case "/symphony/oracle/v1beta1/validators/valB/miss":
			_ = json.NewEncoder(w).Encode(map[string]string{"miss_counter": "7"})
		case "/symphony/oracle/v1beta1/validators/valA/feeder":
			_ = json.NewEncoder(w).Encode(map[string]string{"feeder_addr": "feederA"})
		case "/symphony/oracle/v1beta1/validators/valB/feeder":
			http.NotFound(w, r)
		case "/cosmos/bank/v1beta1/balances/feederA/by_denom":
			if r.URL.Query().Get("denom") != "note" {
				t.Errorf("denom 参数错误: %s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"balance": map[string]string{"denom": "note", "amount": "5000000"},
			})
		case "/symphony/oracle/v1beta1/denoms/exchange_rates":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"exchange_rates": []map[string]string{{"denom": "uusd", "amount": "1.75"}},
			})
		default:
			t.Errorf("未预期的请求路径: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rec, err := testClient(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch 应成功: %v", err)
	}

	if len(rec.Validators) != 2 {
		t.Fatalf("验证人数量 = %d, want 2", len(rec.Validators))
	}
	if rec.Misses["valA"] != 42 || rec.Misses["valB"] != 7 {
		t.Fatalf("miss 记录错误: %#v", rec.Misses)
	}
	if rec.Feeders["valA"] != "feederA" {
		t.Fatalf("feeder 记录错误: %#v", rec.Feeders)
	}
	if _, ok := rec.Feeders["valB"]; ok {
		t.Fatal("404 feeder 应视为未配置")
	}
	if bal, ok := rec.Balances["valA"]; !ok || !bal.Equal(decimal.NewFromInt(5_000_000)) {
		t.Fatalf("balance 记录错误: %#v", rec.Balances)
	}
	if len(rec.Rates) != 1 || rec.Rates[0].Denom != "uusd" {
		t.Fatalf("汇率记录错误: %#v", rec.Rates)
	}
}

func TestBondedValidatorsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pagination.key") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"validators": []map[string]any{
					{"operator_address": "val1", "description": map[string]string{"moniker": "one"}, "tokens": "1"},
				},
				"pagination": map[string]any{"next_key": "page2"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"validators": []map[string]any{
				{"operator_address": "val2", "description": map[string]string{"moniker": "two"}, "tokens": "2"},
			},
			"pagination": map[string]any{"next_key": ""},
		})
	}))
	defer srv.Close()

	validators, err := testClient(srv.URL).bondedValidators(context.Background())
	if err != nil {
		t.Fatalf("分页拉取应成功: %v", err)
	}
	if len(validators) != 2 || validators[0].Address != "val1" || validators[1].Address != "val2" {
		t.Fatalf("分页结果错误: %#v", validators)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"miss_counter": "3"})
	}))
	defer srv.Close()

	miss, err := testClient(srv.URL).missCounter(context.Background(), "valA")
	if err != nil {
		t.Fatalf("5xx 重试后应成功: %v", err)
	}
	if miss != 3 {
		t.Fatalf("miss = %d, want 3", miss)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("调用次数 = %d, want 2", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).missCounter(context.Background(), "valA"); err == nil {
		t.Fatal("HTTP 400 应返回错误")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("4xx 不应重试, 调用次数 = %d", got)
	}
}

func TestFeederNotFoundMeansAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	feeder, err := testClient(srv.URL).feederAddress(context.Background(), "valA")
	if err != nil {
		t.Fatalf("404 feeder 不应视为错误: %v", err)
	}
	if feeder != "" {
		t.Fatalf("feeder = %q, want 空", feeder)
	}
}

func TestFetchAbortsWhenValidatorListFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Fetch(context.Background()); err == nil {
		t.Fatal("验证人列表失败时 Fetch 应报错")
	}
}

func TestFetchDegradesWhenExchangeRatesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/cosmos/staking/v1beta1/validators":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"validators": []map[string]any{
					{"operator_address": "valA", "description": map[string]string{"moniker": "Alpha"}, "tokens": "1"},
				},
				"pagination": map[string]any{"next_key": ""},
			})
		case "/symphony/oracle/v1beta1/validators/valA/miss":
			_ = json.NewEncoder(w).Encode(map[string]string{"miss_counter": "0"})
		case "/symphony/oracle/v1beta1/validators/valA/feeder":
			http.NotFound(w, r)
		case "/symphony/oracle/v1beta1/denoms/exchange_rates":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rec, err := testClient(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("汇率失败不应中止 Fetch: %v", err)
	}
	if len(rec.Rates) != 0 {
		t.Fatalf("汇率应为空, 实际 %#v", rec.Rates)
	}
	if _, ok := rec.Misses["valA"]; !ok {
		t.Fatalf("miss 记录应保留: %#v", rec.Misses)
	}
}

func TestMalformedMissCounter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"miss_counter": "not-a-number"})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).missCounter(context.Background(), "valA"); err == nil {
		t.Fatal("非法 miss_counter 应报错")
	}
}
