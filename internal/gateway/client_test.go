package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientCreatePaymentLink(t *testing.T) {
	var paths []string
	var linkForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		paths = append(paths, r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/products":
			assert.Equal(t, "Go Basics", r.PostForm.Get("name"))
			_, _ = w.Write([]byte(`{"id":"prod_1"}`))
		case "/v1/prices":
			assert.Equal(t, "prod_1", r.PostForm.Get("product"))
			assert.Equal(t, "4900", r.PostForm.Get("unit_amount"))
			_, _ = w.Write([]byte(`{"id":"price_1"}`))
		case "/v1/payment_links":
			linkForm = map[string]string{}
			for k := range r.PostForm {
				linkForm[k] = r.PostForm.Get(k)
			}
			_, _ = w.Write([]byte(`{"id":"plink_1","url":"https://pay.example/plink_1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "sk_test")
	link, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{
		ProductName: "Go Basics",
		Amount:      4900,
		Currency:    "usd",
		RedirectURL: "http://localhost/done",
		Metadata:    map[string]string{MetadataUserID: "u1", MetadataCourseID: "c1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "plink_1", link.ID)
	assert.Equal(t, "https://pay.example/plink_1", link.URL)
	assert.Equal(t, []string{"/v1/products", "/v1/prices", "/v1/payment_links"}, paths)
	assert.Equal(t, "price_1", linkForm["line_items[0][price]"])
	assert.Equal(t, "u1", linkForm["metadata[userId]"])
	assert.Equal(t, "c1", linkForm["metadata[courseId]"])
	assert.Equal(t, "redirect", linkForm["after_completion[type]"])
}

func TestHTTPClientGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"card declined"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "sk_test").CreatePaymentLink(context.Background(), PaymentLinkRequest{ProductName: "x", Amount: 1, Currency: "usd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card declined")
}

func TestHTTPClientNotConfigured(t *testing.T) {
	_, err := NewHTTPClient("http://unused", "").CreatePaymentLink(context.Background(), PaymentLinkRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHTTPClientDeactivatePaymentLink(t *testing.T) {
	var path, active string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		path = r.URL.Path
		active = r.PostForm.Get("active")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"plink_1","url":"https://pay.example/plink_1"}`))
	}))
	defer srv.Close()

	require.NoError(t, NewHTTPClient(srv.URL, "sk_test").DeactivatePaymentLink(context.Background(), "plink_1"))
	assert.Equal(t, "/v1/payment_links/plink_1", path)
	assert.Equal(t, "false", active)
}
