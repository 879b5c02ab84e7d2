package auth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"chess-gateway/internal/bus"
	"chess-gateway/internal/models"
)

const lookupTimeout = 5 * time.Second

// Lookup is one queued session resolution.
type Lookup struct {
	Socket    models.SocketID
	SessionID string
}

type sessionDoc struct {
	User string `bson:"user"`
}

// Worker owns the session store connection and consumes queued lookups.
// Results are fed back through resolve, which must tolerate the socket
// having already closed.
type Worker struct {
	log      *zap.Logger
	sessions *mongo.Collection
	queue    *bus.Queue[Lookup]
	resolve  func(socket models.SocketID, uid models.UserID, ok bool)
}

func NewWorker(log *zap.Logger, sessions *mongo.Collection, resolve func(models.SocketID, models.UserID, bool)) *Worker {
	return &Worker{
		log:      log,
		sessions: sessions,
		queue:    bus.NewQueue[Lookup](),
		resolve:  resolve,
	}
}

// Enqueue hands a lookup to the worker without blocking.
func (w *Worker) Enqueue(lk Lookup) {
	w.queue.Push(lk)
}

// Stop lets Run return once the backlog drains.
func (w *Worker) Stop() {
	w.queue.Close()
}

// Run blocks until the worker is stopped. Session store errors other than
// a plain miss are fatal; they mean the dependency is gone.
func (w *Worker) Run() {
	for {
		lk, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.lookup(lk)
	}
}

func (w *Worker) lookup(lk Lookup) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	var doc sessionDoc
	err := w.sessions.FindOne(ctx,
		bson.M{"_id": lk.SessionID, "up": true},
		options.FindOne().SetProjection(bson.M{"user": 1}),
	).Decode(&doc)

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		w.log.Info("session not found", zap.Uint64("socket", uint64(lk.Socket)))
		w.resolve(lk.Socket, "", false)
	case err != nil:
		w.log.Fatal("session store lookup failed", zap.Error(err))
	default:
		uid, err := models.ParseUserID(doc.User)
		if err != nil {
			w.log.Warn("session holds invalid user id",
				zap.String("user", doc.User), zap.Error(err))
			w.resolve(lk.Socket, "", false)
			return
		}
		w.resolve(lk.Socket, uid, true)
	}
}
