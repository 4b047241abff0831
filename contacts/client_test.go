package contacts_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs414s24/contacts/contacts"
	"github.com/cs414s24/contacts/datastores"
	"github.com/cs414s24/contacts/handlers"
	"github.com/cs414s24/contacts/router"
)

func newServer(t *testing.T) (*contacts.Client, *contacts.Book) {
	t.Helper()
	db := datastores.NewMemory()
	book := contacts.NewBook(db)
	srv := httptest.NewServer(router.New("contacts", "test",
		func(http.ResponseWriter, *http.Request) {},
		func(http.ResponseWriter, *http.Request) {},
		router.OptGroup("/api/contacts", router.OptAutoRegister(&handlers.Contacts{Book: book})),
	))
	t.Cleanup(func() {
		db.Close()
		srv.Close()
	})
	return contacts.NewClient(srv.URL + "/api/contacts/"), book
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	client, book := newServer(t)

	id, err := client.Add(ctx, contacts.Contact{ID: 7, Name: "A", Email: "a@x.com"})
	require.NoError(t, err)
	_, err = datastores.ParseDocumentID(string(id))
	require.NoError(t, err)
	_, err = client.Add(ctx, contacts.Contact{ID: 2, Name: "B"})
	require.NoError(t, err)

	list, err := client.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []contacts.Contact{{ID: 2, Name: "B"}, {ID: 7, Name: "A", Email: "a@x.com"}}, list)

	require.NoError(t, client.Update(ctx, 7, "AA", "aa@x.com"))
	got, err := client.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, contacts.Contact{ID: 7, Name: "AA", Email: "aa@x.com"}, got)

	require.NoError(t, client.Replace(ctx, contacts.Contact{ID: 2, Name: "BB"}))
	got, err = book.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, contacts.Contact{ID: 2, Name: "BB"}, got)

	require.NoError(t, client.Delete(ctx, 2))
	require.ErrorIs(t, client.Delete(ctx, 2), contacts.ErrNotFound)
	require.ErrorIs(t, client.Update(ctx, 2, "", ""), contacts.ErrNotFound)
	_, err = client.Get(ctx, 2)
	require.ErrorIs(t, err, contacts.ErrNotFound)

	list, err = client.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClientRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"title":"Internal Server Error","status":500,"detail":"store unavailable"}`)
	}))
	defer srv.Close()

	_, err := contacts.NewClient(srv.URL).List(context.Background())
	var remote *contacts.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusInternalServerError, remote.Status)
	assert.Equal(t, "store unavailable", remote.Detail)
}

func TestClientUnknownRoute(t *testing.T) {
	ctx := context.Background()
	client, book := newServer(t)
	_, err := book.Add(ctx, contacts.Contact{ID: 1, Name: "A"})
	require.NoError(t, err)
	client.BaseURL = strings.Replace(client.BaseURL, "/api/", "/v9/", 1)

	err = client.Delete(ctx, 1)
	require.NotErrorIs(t, err, contacts.ErrNotFound)
	var remote *contacts.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusNotFound, remote.Status)

	_, err = book.Get(ctx, 1)
	require.NoError(t, err)
}

func TestClientWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, book := newServer(t)

	snapshots, err := client.Watch(ctx)
	require.NoError(t, err)

	next := func() contacts.Snapshot {
		t.Helper()
		select {
		case s, ok := <-snapshots:
			require.True(t, ok)
			require.NoError(t, s.Err)
			return s
		case <-time.After(5 * time.Second):
			t.Fatal("no snapshot")
			return contacts.Snapshot{}
		}
	}
	assert.Empty(t, next().Contacts)

	_, err = book.Add(ctx, contacts.Contact{ID: 1, Name: "A"})
	require.NoError(t, err)
	for s := next(); len(s.Contacts) != 1; s = next() {
	}

	cancel()
	for range snapshots {
	}
}
