// Package console holds the logic of the contacts screen: three text inputs,
// one action per button, results shown in dialogs, toasts and a live list.
// Rendering is left to a [Presenter].
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cs414s24/contacts/contacts"
	"github.com/cs414s24/contacts/datastores"
)

// Form is the content of the three text inputs.
type Form struct {
	ID    string
	Name  string
	Email string
}

type Presenter interface {
	Dialog(title, message string)
	Toast(message string)
	ClearInputs()
	ShowContacts([]contacts.Contact)
}

// Gateway is the contacts store behind the screen, a [contacts.Book] or a
// [contacts.Client].
type Gateway interface {
	Add(ctx context.Context, c contacts.Contact) (datastores.DocumentID, error)
	List(ctx context.Context) ([]contacts.Contact, error)
	Delete(ctx context.Context, id int64) error
	Update(ctx context.Context, id int64, name, email string) error
	Watch(ctx context.Context) (<-chan contacts.Snapshot, error)
}

var (
	_ Gateway = (*contacts.Book)(nil)
	_ Gateway = (*contacts.Client)(nil)
)

const (
	MsgAdded        = "Contact has been added."
	MsgDeleted      = "Contact has been deleted."
	MsgUpdated      = "Contact has been updated."
	MsgEnterID      = "Enter an id"
	MsgEnterNumber  = "Enter a numeric id"
	MsgListFailed   = "Error getting documents"
	MsgChangeFailed = "Error saving changes"

	TitleSuccess = "Success"
	TitleListing = "Data Listing"
	TitleError   = "Error"
)

var ErrEmptyID = errors.New("console: empty id")

// FormatError reports an id input that is not an integer.
type FormatError struct {
	Input string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("console: id %q is not an integer: %v", e.Input, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ParseID coerces the id input to an integer.
func ParseID(input string) (int64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, ErrEmptyID
	}
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		return 0, &FormatError{Input: input, Err: err}
	}
	return id, nil
}

type Console struct {
	Contacts Gateway
	View     Presenter
	Logger   *slog.Logger
}

func (c *Console) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// parseID reads the id input, prompting the user when it is unusable.
func (c *Console) parseID(f Form) (int64, bool) {
	id, err := ParseID(f.ID)
	var formatErr *FormatError
	switch {
	case err == nil:
		return id, true
	case errors.As(err, &formatErr):
		c.View.Toast(MsgEnterNumber)
	default:
		c.View.Toast(MsgEnterID)
	}
	return 0, false
}

// Add stores the contact described by the form.
func (c *Console) Add(ctx context.Context, f Form) {
	id, ok := c.parseID(f)
	if !ok {
		return
	}
	docID, err := c.Contacts.Add(ctx, contacts.Contact{ID: id, Name: f.Name, Email: f.Email})
	if err != nil {
		c.logger().ErrorContext(ctx, "could not add contact", "id", id, "err", err)
		c.View.Dialog(TitleError, MsgChangeFailed)
		return
	}
	c.logger().DebugContext(ctx, "contact added", "id", id, "document", docID)
	c.View.ClearInputs()
	c.View.Dialog(TitleSuccess, MsgAdded)
}

// ViewAll shows every contact, ordered by id, in a dialog.
func (c *Console) ViewAll(ctx context.Context) {
	list, err := c.Contacts.List(ctx)
	if err != nil {
		c.logger().ErrorContext(ctx, "error getting documents", "err", err)
		c.View.Dialog(TitleError, MsgListFailed)
		return
	}
	for _, contact := range list {
		c.logger().DebugContext(ctx, "contact", "id", contact.ID, "name", contact.Name, "email", contact.Email)
	}
	c.View.Dialog(TitleListing, contacts.FormatListing(list))
}

// Delete removes the first contact with the form's id.
func (c *Console) Delete(ctx context.Context, f Form) {
	id, ok := c.parseID(f)
	if !ok {
		return
	}
	err := c.Contacts.Delete(ctx, id)
	switch {
	case err == nil:
		c.View.ClearInputs()
		c.View.Toast(MsgDeleted)
	case errors.Is(err, contacts.ErrNotFound):
		c.logger().InfoContext(ctx, "no such document", "id", id)
	default:
		c.logger().ErrorContext(ctx, "could not delete contact", "id", id, "err", err)
		c.View.Dialog(TitleError, MsgChangeFailed)
	}
}

// Update sets the name and email of the first contact with the form's id.
func (c *Console) Update(ctx context.Context, f Form) {
	id, ok := c.parseID(f)
	if !ok {
		return
	}
	err := c.Contacts.Update(ctx, id, f.Name, f.Email)
	switch {
	case err == nil:
		c.View.ClearInputs()
		c.View.Toast(MsgUpdated)
	case errors.Is(err, contacts.ErrNotFound):
		c.logger().InfoContext(ctx, "no such document", "id", id)
	default:
		c.logger().ErrorContext(ctx, "could not update contact", "id", id, "err", err)
		c.View.Dialog(TitleError, MsgChangeFailed)
	}
}

// Realtime shows every snapshot of the contacts until ctx is done or the
// stream ends. Failures are logged, never shown.
func (c *Console) Realtime(ctx context.Context) error {
	snapshots, err := c.Contacts.Watch(ctx)
	if err != nil {
		c.logger().WarnContext(ctx, "listen failed", "err", err)
		return err
	}
	for s := range snapshots {
		if s.Err != nil {
			c.logger().WarnContext(ctx, "listen failed", "err", s.Err)
			continue
		}
		c.logger().DebugContext(ctx, "snapshot", "contacts", len(s.Contacts))
		c.View.ShowContacts(s.Contacts)
	}
	return ctx.Err()
}
