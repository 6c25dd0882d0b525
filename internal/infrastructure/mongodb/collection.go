package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rental-platform/rental-service/internal/domain"
	"github.com/rental-platform/rental-service/pkg/errors"
	pkgmongo "github.com/rental-platform/rental-service/pkg/mongodb"
)

// eventSource is implemented by aggregates that queue domain events
type eventSource interface {
	GetDomainEvents() []domain.DomainEvent
	ClearDomainEvents()
}

// versioned stores one aggregate type under the optimistic version rule
type versioned[T any] struct {
	coll          *pkgmongo.InstrumentedCollection
	aggregateType string
	id            func(*T) string
	version       func(*T) *int64
	// uniques maps index names to the conflict reported when they are violated
	uniques map[string]string
}

// save inserts a version zero aggregate, otherwise replaces it only while the stored
// version matches. The caller's version is bumped on success.
func (c *versioned[T]) save(ctx context.Context, tx *session, row *T) error {
	id := c.id(row)
	if id == "" {
		return fmt.Errorf("%s without id: %w", c.aggregateType, domain.ErrValidation)
	}
	v := c.version(row)
	expected := *v
	*v = expected + 1

	var err error
	if expected == 0 {
		_, err = c.coll.InsertOne(ctx, row)
	} else {
		var res *mongo.UpdateResult
		res, err = c.coll.ReplaceOne(ctx, pkgmongo.VersionFilter(id, expected), row)
		if err == nil && res.MatchedCount == 0 {
			err = fmt.Errorf("%s %s is no longer at version %d: %w", c.aggregateType, id, expected, domain.ErrConcurrentModification)
		}
	}
	if err != nil {
		*v = expected
		return c.translate(id, err)
	}

	if src, ok := any(row).(eventSource); ok {
		tx.collect(c.aggregateType, id, src.GetDomainEvents())
		src.ClearDomainEvents()
	}
	return nil
}

// translate turns duplicate key errors into a conflict on the offending index
func (c *versioned[T]) translate(id string, err error) error {
	if !pkgmongo.IsDuplicateKey(err) {
		return err
	}
	msg := err.Error()
	for index, field := range c.uniques {
		if strings.Contains(msg, index) {
			return errors.ErrConflict(c.aggregateType+" "+field+" already exists").WithDetail("field", field)
		}
	}
	return fmt.Errorf("%s %s already exists: %w", c.aggregateType, id, domain.ErrConcurrentModification)
}

func (c *versioned[T]) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*T, error) {
	out := new(T)
	err := c.coll.FindOne(ctx, filter, out, opts...)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", c.aggregateType, err)
	}
	return out, nil
}

func (c *versioned[T]) findMany(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*T, error) {
	out := make([]*T, 0)
	if err := c.coll.FindAll(ctx, filter, &out, opts...); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.aggregateType, err)
	}
	return out, nil
}

func (c *versioned[T]) count(ctx context.Context, filter bson.M) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.aggregateType, err)
	}
	return n, nil
}

// caseInsensitive compares strings ignoring case, matching the serial number index
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}
