// Package contacts keeps an address book in a document collection. Contacts
// are looked up by their numeric id field, which the collection does not
// require to be unique: lookups act on the first matching document.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ds "github.com/cs414s24/contacts/datastores"
)

// CollectionName is the collection holding one document per contact.
const CollectionName = "contacts"

const (
	fieldID    = "id"
	fieldName  = "name"
	fieldEmail = "email"
)

type Contact struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Snapshot is the ordered content of the book at some point in time.
type Snapshot struct {
	Contacts []Contact
	Err      error
}

// Frame is the wire form of a [Snapshot] on realtime streams.
type Frame struct {
	Contacts []Contact `json:"contacts"`
	Error    string    `json:"error,omitempty"`
}

func (s Snapshot) Frame() Frame {
	if s.Err != nil {
		return Frame{Contacts: []Contact{}, Error: s.Err.Error()}
	}
	return Frame{Contacts: s.Contacts}
}

func (f Frame) Snapshot() Snapshot {
	if f.Error != "" {
		return Snapshot{Err: &RemoteError{Detail: f.Error}}
	}
	if f.Contacts == nil {
		f.Contacts = []Contact{}
	}
	return Snapshot{Contacts: f.Contacts}
}

var ErrNotFound = errors.New("contacts: no contact with this id")

// NotFoundDetail is the problem detail of responses reporting [ErrNotFound].
const NotFoundDetail = "id not found"

// Book implements the contacts operations over a [ds.Collection].
type Book struct {
	docs ds.Collection
}

func NewBook(db ds.Database) *Book {
	return &Book{docs: db.Collection(CollectionName)}
}

func (c Contact) fields() ds.Fields {
	return ds.Fields{fieldID: c.ID, fieldName: c.Name, fieldEmail: c.Email}
}

func fromDocument(d *ds.Document) (Contact, error) {
	var c Contact
	if v := d.Get(fieldID); v != nil {
		id, ok := ds.Int64(v)
		if !ok {
			return c, fmt.Errorf("document %s: id %v is not an integer", d.ID, v)
		}
		c.ID = id
	}
	c.Name, _ = d.Get(fieldName).(string)
	c.Email, _ = d.Get(fieldEmail).(string)
	return c, nil
}

func fromDocuments(docs []*ds.Document) ([]Contact, error) {
	contacts := make([]Contact, 0, len(docs))
	for _, d := range docs {
		c, err := fromDocument(d)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

var byID = ds.Query{OrderBy: []ds.Order{{Field: fieldID}}}

func withID(id int64) ds.Query {
	return ds.Query{Where: []ds.Filter{{Field: fieldID, Value: id}}, Limit: 1}
}

// Add stores c as a new document, even when another contact has the same id.
func (b *Book) Add(ctx context.Context, c Contact) (ds.DocumentID, error) {
	return b.docs.Add(ctx, c.fields())
}

// List returns every contact ordered by id.
func (b *Book) List(ctx context.Context) ([]Contact, error) {
	docs, err := b.docs.Query(ctx, byID)
	if err != nil {
		return nil, err
	}
	return fromDocuments(docs)
}

func (b *Book) first(ctx context.Context, id int64) (*ds.Document, error) {
	docs, err := b.docs.Query(ctx, withID(id))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (b *Book) Get(ctx context.Context, id int64) (Contact, error) {
	d, err := b.first(ctx, id)
	if err != nil {
		return Contact{}, err
	}
	return fromDocument(d)
}

// Delete removes the first contact with the given id.
func (b *Book) Delete(ctx context.Context, id int64) error {
	d, err := b.first(ctx, id)
	if err != nil {
		return err
	}
	return b.docs.Delete(ctx, d.ID)
}

// Update sets the name and email of the first contact with the given id and
// keeps its other fields.
func (b *Book) Update(ctx context.Context, id int64, name, email string) error {
	d, err := b.first(ctx, id)
	if err != nil {
		return err
	}
	err = b.docs.Update(ctx, d.ID, ds.Fields{fieldName: name, fieldEmail: email})
	if errors.Is(err, ds.ErrObjectNotFound) {
		return ErrNotFound
	}
	return err
}

// Replace overwrites the whole document of the first contact with c.ID.
func (b *Book) Replace(ctx context.Context, c Contact) error {
	d, err := b.first(ctx, c.ID)
	if err != nil {
		return err
	}
	return b.docs.Set(ctx, d.ID, c.fields())
}

// Watch streams the ordered contacts after every change until ctx is done.
func (b *Book) Watch(ctx context.Context) (<-chan Snapshot, error) {
	in, err := b.docs.Watch(ctx, byID)
	if err != nil {
		return nil, err
	}
	out := make(chan Snapshot)
	go func() {
		defer close(out)
		for s := range in {
			snap := Snapshot{Err: s.Err}
			if s.Err == nil {
				snap.Contacts, snap.Err = fromDocuments(s.Documents)
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				for range in {
				}
				return
			}
		}
	}()
	return out, nil
}

// FormatListing renders contacts the way the data listing dialog shows them.
func FormatListing(contacts []Contact) string {
	var b strings.Builder
	for _, c := range contacts {
		fmt.Fprintf(&b, "ID : %d\n", c.ID)
		fmt.Fprintf(&b, "NAME : %s\n", c.Name)
		fmt.Fprintf(&b, "EMAIL :  %s\n\n", c.Email)
	}
	return b.String()
}
