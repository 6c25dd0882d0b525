package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "uuid", key: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "client generated", key: "checkout_loc-main_0042"},
		{name: "empty", key: "", wantErr: ErrKeyRequired},
		{name: "too long", key: strings.Repeat("k", DefaultMaxKeyLength+1), wantErr: ErrKeyTooLong},
		{name: "at limit", key: strings.Repeat("k", DefaultMaxKeyLength)},
		{name: "space", key: "txn 1", wantErr: ErrKeyInvalid},
		{name: "punctuation", key: "txn#1", wantErr: ErrKeyInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, ValidateKey(tt.key, DefaultMaxKeyLength))
		})
	}
}

func TestComputeRequestFingerprint(t *testing.T) {
	body := []byte(`{"amount":"10.00","method":"CASH"}`)
	base := ComputeRequestFingerprint("POST", "/api/v1/transactions/t-1/payments", body)

	assert.Len(t, base, 64)
	assert.Equal(t, base, ComputeRequestFingerprint("POST", "/api/v1/transactions/t-1/payments", body))
	assert.NotEqual(t, base, ComputeRequestFingerprint("POST", "/api/v1/transactions/t-2/payments", body))
	assert.NotEqual(t, base, ComputeRequestFingerprint("PUT", "/api/v1/transactions/t-1/payments", body))
	assert.NotEqual(t, base, ComputeRequestFingerprint("POST", "/api/v1/transactions/t-1/payments", append(body, ' ')))
	assert.NotEqual(t,
		ComputeRequestFingerprint("POST", "/a", []byte("b")),
		ComputeRequestFingerprint("POST", "/ab", nil),
		"fields are separated")
}

func TestNormalizeKey(t *testing.T) {
	for _, in := range []string{"abc123", "  abc123", "abc123  ", "\tabc123\t"} {
		assert.Equal(t, "abc123", NormalizeKey(in))
	}
}

func BenchmarkComputeRequestFingerprint(b *testing.B) {
	body := []byte(`{"transactionType":"RENTAL","customerId":"c-1","lines":[{"skuId":"SKU-1","quantity":2}]}`)
	for i := 0; i < b.N; i++ {
		ComputeRequestFingerprint("POST", "/api/v1/transactions", body)
	}
}
