package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/gorilla/websocket"

	"github.com/cs414s24/contacts/contacts"
)

type Contacts struct {
	Book         *contacts.Book
	ErrorHandler func(context.Context, error)
	Metrics      *metrics.Set // optional

	streams  atomic.Int64
	upgrader websocket.Upgrader
}

type ContactModel struct {
	ID    int64  `json:"id"    example:"7"                doc:"Numeric id chosen by the user, not necessarily unique"`
	Name  string `json:"name"  example:"john"`
	Email string `json:"email" example:"john@example.com"`
}

type ContactFields struct {
	Name  string `json:"name"  example:"john"`
	Email string `json:"email" example:"john@example.com"`
}

func toModel(c contacts.Contact) ContactModel {
	return ContactModel{ID: c.ID, Name: c.Name, Email: c.Email}
}

func toModels(cs []contacts.Contact) []ContactModel {
	body := make([]ContactModel, 0, len(cs))
	for _, c := range cs {
		body = append(body, toModel(c))
	}
	return body
}

// ActiveStreams is the number of realtime streams currently served.
func (h *Contacts) ActiveStreams() int64 { return h.streams.Load() }

func (h *Contacts) RegisterList(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/",
		handlerWithErrorHandler(h.list, h.ErrorHandler),
		opErrors(http.StatusInternalServerError),
	)
}

type ContactsListOutput struct {
	Body []ContactModel
}

func (h *Contacts) list(ctx context.Context, _ *struct{}) (*ContactsListOutput, error) {
	cs, err := h.Book.List(ctx)
	if err != nil {
		return nil, err
	}
	return &ContactsListOutput{Body: toModels(cs)}, nil
}

func (h *Contacts) RegisterCreate(api huma.API) { // called by [huma.AutoRegister]
	huma.Post(api, "/",
		handlerWithErrorHandler(h.create, h.ErrorHandler),
		opErrors(http.StatusUnprocessableEntity, http.StatusInternalServerError),
		func(o *huma.Operation) { o.DefaultStatus = http.StatusCreated },
	)
}

type ContactsCreateOutput struct {
	Body struct {
		DocumentID string `json:"documentId" doc:"Identifier of the stored document"`
	}
}

func (h *Contacts) create(ctx context.Context, input *struct {
	Body ContactModel
}) (*ContactsCreateOutput, error) {
	id, err := h.Book.Add(ctx, contacts.Contact{
		ID:    input.Body.ID,
		Name:  input.Body.Name,
		Email: input.Body.Email,
	})
	if err != nil {
		return nil, err
	}
	out := &ContactsCreateOutput{}
	out.Body.DocumentID = string(id)
	return out, nil
}

func (h *Contacts) RegisterGet(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/{id}",
		handlerWithErrorHandler(h.get, h.ErrorHandler),
		opErrors(http.StatusNotFound, http.StatusInternalServerError),
	)
}

type ContactsGetOutput struct {
	Body ContactModel
}

func (h *Contacts) get(ctx context.Context, input *struct {
	ID int64 `path:"id" doc:"id of the contact to get"`
}) (*ContactsGetOutput, error) {
	c, err := h.Book.Get(ctx, input.ID)
	if err != nil {
		return nil, notFound(err)
	}
	return &ContactsGetOutput{Body: toModel(c)}, nil
}

func (h *Contacts) RegisterPut(api huma.API) { // called by [huma.AutoRegister]
	huma.Put(api, "/{id}",
		handlerWithErrorHandler(h.put, h.ErrorHandler),
		opErrors(http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	)
}

func (h *Contacts) put(ctx context.Context, input *struct {
	ID   int64 `path:"id" doc:"id of the contact to overwrite"`
	Body ContactFields
}) (*struct{}, error) {
	return nil, notFound(h.Book.Replace(ctx, contacts.Contact{
		ID:    input.ID,
		Name:  input.Body.Name,
		Email: input.Body.Email,
	}))
}

func (h *Contacts) RegisterPatch(api huma.API) { // called by [huma.AutoRegister]
	huma.Patch(api, "/{id}",
		handlerWithErrorHandler(h.patch, h.ErrorHandler),
		opErrors(http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	)
}

func (h *Contacts) patch(ctx context.Context, input *struct {
	ID   int64 `path:"id" doc:"id of the contact to update"`
	Body ContactFields
}) (*struct{}, error) {
	return nil, notFound(h.Book.Update(ctx, input.ID, input.Body.Name, input.Body.Email))
}

func (h *Contacts) RegisterDel(api huma.API) { // called by [huma.AutoRegister]
	huma.Delete(api, "/{id}",
		handlerWithErrorHandler(h.del, h.ErrorHandler),
		opErrors(http.StatusNotFound, http.StatusInternalServerError),
	)
}

func (h *Contacts) del(ctx context.Context, input *struct {
	ID int64 `path:"id" doc:"id of the contact to delete"`
}) (*struct{}, error) {
	return nil, notFound(h.Book.Delete(ctx, input.ID))
}

// SnapshotEvent carries every contact, ordered by id.
type SnapshotEvent struct {
	Contacts []ContactModel `json:"contacts"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func (h *Contacts) RegisterEvents(api huma.API) { // called by [huma.AutoRegister]
	sse.Register(api, huma.Operation{
		OperationID: "watch-contacts",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Watch contacts",
		Description: "Sends every contact after each change to the collection.",
	}, map[string]any{
		"snapshot": SnapshotEvent{},
		"error":    ErrorEvent{},
	}, h.events)
}

func (h *Contacts) events(ctx context.Context, _ *struct{}, send sse.Sender) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer h.track()()

	snapshots, err := h.Book.Watch(ctx)
	if err != nil {
		h.handleError(ctx, err)
		_ = send.Data(ErrorEvent{Message: "error getting documents"})
		return
	}
	for s := range snapshots {
		if s.Err != nil {
			h.handleError(ctx, s.Err)
			err = send.Data(ErrorEvent{Message: "error getting documents"})
		} else {
			err = send.Data(SnapshotEvent{Contacts: toModels(s.Contacts)})
		}
		if err != nil {
			return
		}
		h.sent()
	}
}

func (h *Contacts) RegisterWebsocket(api huma.API) { // called by [huma.AutoRegister]
	huma.Register(api, huma.Operation{
		OperationID: "watch-contacts-websocket",
		Method:      http.MethodGet,
		Path:        "/ws",
		Summary:     "Watch contacts over a websocket",
		Description: "Upgrades to a websocket sending one JSON frame with every contact after each change.",
		Responses: map[string]*huma.Response{
			"101": {Description: "Switching Protocols"},
		},
	}, h.stream)
}

const wsWriteWait = 10 * time.Second

func (h *Contacts) stream(_ context.Context, _ *struct{}) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{Body: func(hctx huma.Context) {
		r, w := humago.Unwrap(hctx)
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.handleError(hctx.Context(), err)
			return
		}
		defer conn.Close()
		defer h.track()()

		ctx, cancel := context.WithCancel(hctx.Context())
		defer cancel()
		go func() {
			// the peer never sends anything; reading detects it going away
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		snapshots, err := h.Book.Watch(ctx)
		if err != nil {
			h.handleError(ctx, err)
			return
		}
		for s := range snapshots {
			frame := s.Frame()
			if s.Err != nil {
				h.handleError(ctx, s.Err)
				frame.Error = "error getting documents"
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			h.sent()
		}
	}}, nil
}

// track counts a stream as active until the returned function is called.
func (h *Contacts) track() func() {
	h.streams.Add(1)
	if h.Metrics != nil {
		h.Metrics.GetOrCreateGauge("contacts_streams_active", func() float64 {
			return float64(h.streams.Load())
		})
	}
	return func() { h.streams.Add(-1) }
}

func (h *Contacts) sent() {
	if h.Metrics != nil {
		h.Metrics.GetOrCreateCounter("contacts_snapshots_sent_total").Inc()
	}
}
