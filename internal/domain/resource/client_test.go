package resource

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/logging"
	"eduverse-client-go/internal/platform/testing/apitest"
	httptransport "eduverse-client-go/internal/transport/http"
)

type staticSession string

func (s staticSession) Credential() string { return string(s) }

type noTerminate struct{}

func (noTerminate) Terminate(context.Context) {}

func newResourceClient(t *testing.T) (*apitest.Backend, *Client) {
	t.Helper()
	backend := apitest.New()
	t.Cleanup(backend.Close)

	client, err := httptransport.NewClient(httptransport.ClientConfig{BaseURL: backend.BaseURL(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	pipeline, err := httptransport.NewPipeline(httptransport.Options{
		Client:  client,
		Session: staticSession(backend.IssueCredential("alice")),
		Refresher: httptransport.RefreshFunc(func(context.Context) (string, error) {
			return "", errors.New(errors.KindRefreshFailed, "test", "no refresh")
		}),
		Terminator: noTerminate{},
		Logger:     logging.Nop(),
	})
	require.NoError(t, err)
	return backend, NewClient(pipeline)
}

func TestClient_CreateUploadsMultipart(t *testing.T) {
	backend, client := newResourceClient(t)

	created, err := client.Create(context.Background(), Draft{
		Title:          "Intro to Go",
		ContentAddress: "ipfs://bafy-go",
		Owner:          "0x00000000000000000000000000000000000a11ce",
		FileName:       "intro.md",
		ContentType:    "text/markdown",
		Content:        []byte("# hello"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "intro.md", created.FileName)
	assert.Equal(t, int64(7), created.Size)
	assert.False(t, created.Minted())

	captured := backend.Captured(apitest.Route(http.MethodPost, apitest.PathResources))
	require.Len(t, captured, 1)
	assert.Contains(t, captured[0].ContentType, "multipart/form-data")
}

func TestClient_CreateValidates(t *testing.T) {
	backend, client := newResourceClient(t)

	_, err := client.Create(context.Background(), Draft{Title: "x", Content: []byte("y")})
	assert.True(t, errors.IsKind(err, errors.KindDomain))
	assert.Equal(t, 0, backend.Calls(apitest.Route(http.MethodPost, apitest.PathResources)))
}

func TestClient_AttachAndGet(t *testing.T) {
	backend, client := newResourceClient(t)
	backend.PutResource(apitest.Resource{ID: "r-1", Title: "Notes", ContentAddress: "cid"})

	updated, err := client.AttachLedgerReference(context.Background(), "r-1", "17", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "17", updated.TokenID)

	got, err := client.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.True(t, got.Minted())
	assert.Equal(t, "0xabc", got.TxHash)

	_, err = client.Get(context.Background(), "missing")
	assert.True(t, errors.IsKind(err, errors.KindDomain))
}

func TestClient_BackendFailureCode(t *testing.T) {
	backend, client := newResourceClient(t)
	backend.FailResources(503)

	_, err := client.Search(context.Background(), Query{Text: "go"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindDomain))
}

func TestClient_Search(t *testing.T) {
	backend, client := newResourceClient(t)
	base := time.Now()
	for i, title := range []string{"Go basics", "Go channels", "Rust intro"} {
		backend.PutResource(apitest.Resource{ID: title, Title: title, ContentAddress: "cid", CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}

	page, err := client.Search(context.Background(), Query{Text: "go", Page: 1, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Go basics", page.Items[0].Title)
	assert.True(t, page.HasMore())

	catalog := NewCatalog(client, nil)
	catalog.Search(context.Background(), Query{Text: "go", Size: 1})
	catalog.Wait()
	require.True(t, catalog.LoadMore(context.Background()))
	catalog.Wait()

	current, err := catalog.Current()
	require.NoError(t, err)
	assert.Len(t, current.Items, 2)
	assert.False(t, current.HasMore())
}
