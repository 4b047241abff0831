package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs414s24/contacts/console"
	"github.com/cs414s24/contacts/contacts"
	"github.com/cs414s24/contacts/datastores"
)

func newModel(t *testing.T) (Model, *contacts.Book) {
	t.Helper()
	db := datastores.NewMemory()
	t.Cleanup(func() { db.Close() })
	book := contacts.NewBook(db)
	m := New(context.Background(), book, nil)
	t.Cleanup(m.cancel)
	return m, book
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func fill(t *testing.T, m Model, id, name, email string) Model {
	t.Helper()
	m = typeText(t, m, id)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, name)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, email)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	return m
}

// press sends key, runs the resulting operation and applies what it presented.
func press(t *testing.T, m Model, key tea.KeyType) Model {
	t.Helper()
	m, cmd := update(t, m, tea.KeyMsg{Type: key})
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())
	return drain(t, m)
}

func drain(t *testing.T, m Model) Model {
	t.Helper()
	for {
		select {
		case msg := <-m.queue:
			m, _ = update(t, m, msg)
		default:
			return m
		}
	}
}

func TestForm(t *testing.T) {
	m, _ := newModel(t)
	m = fill(t, m, "7", "A", "a@x.com")
	assert.Equal(t, console.Form{ID: "7", Name: "A", Email: "a@x.com"}, m.form())
	assert.Equal(t, inputID, m.focus)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, inputEmail, m.focus)
}

func TestAddAndList(t *testing.T) {
	m, book := newModel(t)
	m = fill(t, m, "7", "A", "a@x.com")

	m = press(t, m, tea.KeyCtrlA)
	require.NotNil(t, m.dialog)
	assert.Equal(t, console.TitleSuccess, m.dialog.title)
	assert.Contains(t, m.View(), console.MsgAdded)
	assert.Equal(t, console.Form{}, m.form())

	list, err := book.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []contacts.Contact{{ID: 7, Name: "A", Email: "a@x.com"}}, list)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, m.dialog)

	m = press(t, m, tea.KeyCtrlL)
	require.NotNil(t, m.dialog)
	assert.Equal(t, console.TitleListing, m.dialog.title)
	assert.Contains(t, m.View(), "EMAIL :  a@x.com")
}

func TestDialogBlocksInput(t *testing.T) {
	m, _ := newModel(t)
	m, _ = update(t, m, dialogMsg{"t", "m"})
	m = typeText(t, m, "9")
	assert.Empty(t, m.form().ID)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, m.dialog)
}

func TestEmptyIDToast(t *testing.T) {
	m, _ := newModel(t)

	m = press(t, m, tea.KeyCtrlD)
	assert.Equal(t, console.MsgEnterID, m.toast)
	assert.Contains(t, m.View(), console.MsgEnterID)

	m, _ = update(t, m, toastExpiredMsg{seq: m.toastSeq - 1})
	assert.Equal(t, console.MsgEnterID, m.toast)
	m, _ = update(t, m, toastExpiredMsg{seq: m.toastSeq})
	assert.Empty(t, m.toast)
}

func TestUpdateAndDelete(t *testing.T) {
	m, book := newModel(t)
	ctx := context.Background()
	_, err := book.Add(ctx, contacts.Contact{ID: 3, Name: "old", Email: "old@x.com"})
	require.NoError(t, err)

	m = fill(t, m, "3", "new", "new@x.com")
	m = press(t, m, tea.KeyCtrlU)
	assert.Equal(t, console.MsgUpdated, m.toast)

	c, err := book.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, contacts.Contact{ID: 3, Name: "new", Email: "new@x.com"}, c)

	m = typeText(t, m, "3")
	m = press(t, m, tea.KeyCtrlD)
	assert.Equal(t, console.MsgDeleted, m.toast)

	_, err = book.Get(ctx, 3)
	require.ErrorIs(t, err, contacts.ErrNotFound)
}

func TestRealtime(t *testing.T) {
	m, book := newModel(t)
	ctx := context.Background()

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	assert.True(t, m.watching)

	done := make(chan tea.Msg)
	go func() { done <- cmd() }()

	next := func() {
		t.Helper()
		select {
		case msg := <-m.queue:
			m, _ = update(t, m, msg)
		case <-time.After(5 * time.Second):
			t.Fatal("no message")
		}
	}

	next()
	assert.Contains(t, m.View(), "no contacts")

	_, err := book.Add(ctx, contacts.Contact{ID: 7, Name: "A", Email: "a@x.com"})
	require.NoError(t, err)
	for len(m.rows) == 0 {
		next()
	}
	assert.Contains(t, m.View(), "Id: 7")
	assert.Contains(t, m.View(), "a@x.com")

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	msg := <-done
	m, _ = update(t, m, msg)
	assert.False(t, m.watching)
}
