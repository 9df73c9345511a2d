package mongodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

const (
	productsCollection   = "catalog_products"
	warehousesCollection = "warehouses"
	itemsCollection      = "counting_items"
	keySeparator         = "|"
)

// MongoDBRepository implements repository.RemoteStore on MongoDB. Subscriptions use
// change streams, so the deployment must be a replica set.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

type productDoc struct {
	ID                    string `bson:"_id"`
	UserID                string `bson:"user_id"`
	models.CatalogProduct `bson:",inline"`
}

type warehouseDoc struct {
	ID               string `bson:"_id"`
	UserID           string `bson:"user_id"`
	models.Warehouse `bson:",inline"`
}

type itemDoc struct {
	ID                      string `bson:"_id"`
	UserID                  string `bson:"user_id"`
	models.CountingListItem `bson:",inline"`
}

// NewMongoDBRepository connects, pings and makes sure the lookup indexes exist.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	indexes := map[string]bson.D{
		productsCollection:   {{Key: "user_id", Value: 1}, {Key: "barcode", Value: 1}},
		warehousesCollection: {{Key: "user_id", Value: 1}},
		itemsCollection:      {{Key: "user_id", Value: 1}, {Key: "warehouse_id", Value: 1}},
	}
	for coll, keys := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys}); err != nil {
			return fmt.Errorf("create index on %s: %w", coll, err)
		}
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Ping checks connectivity with the primary.
func (r *MongoDBRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func docID(parts ...string) string {
	return strings.Join(parts, keySeparator)
}

// ListProducts returns the catalog of a user.
func (r *MongoDBRepository) ListProducts(ctx context.Context, userID string) ([]models.CatalogProduct, error) {
	cursor, err := r.db.Collection(productsCollection).Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "barcode", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	out := make([]models.CatalogProduct, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.CatalogProduct)
	}
	return out, nil
}

// PutProduct upserts one product.
func (r *MongoDBRepository) PutProduct(ctx context.Context, userID string, product models.CatalogProduct) error {
	return r.PutProducts(ctx, userID, []models.CatalogProduct{product})
}

// PutProducts upserts several products in one bulk write.
func (r *MongoDBRepository) PutProducts(ctx context.Context, userID string, products []models.CatalogProduct) error {
	if len(products) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(products))
	for _, p := range products {
		doc := productDoc{ID: docID(userID, p.Barcode), UserID: userID, CatalogProduct: p}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if _, err := r.db.Collection(productsCollection).BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("upsert %d products: %w", len(products), err)
	}
	return nil
}

// DeleteProduct removes one product.
func (r *MongoDBRepository) DeleteProduct(ctx context.Context, userID, barcode string) error {
	if _, err := r.db.Collection(productsCollection).DeleteOne(ctx, bson.M{"_id": docID(userID, barcode)}); err != nil {
		return fmt.Errorf("delete product %s: %w", barcode, err)
	}
	return nil
}

// ClearProducts removes the whole catalog of a user.
func (r *MongoDBRepository) ClearProducts(ctx context.Context, userID string) error {
	if _, err := r.db.Collection(productsCollection).DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("clear products: %w", err)
	}
	return nil
}

// ListWarehouses returns the warehouses of a user.
func (r *MongoDBRepository) ListWarehouses(ctx context.Context, userID string) ([]models.Warehouse, error) {
	cursor, err := r.db.Collection(warehousesCollection).Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "warehouse_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find warehouses: %w", err)
	}
	var docs []warehouseDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode warehouses: %w", err)
	}
	out := make([]models.Warehouse, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Warehouse)
	}
	return out, nil
}

// PutWarehouse upserts a warehouse.
func (r *MongoDBRepository) PutWarehouse(ctx context.Context, userID string, warehouse models.Warehouse) error {
	doc := warehouseDoc{ID: docID(userID, warehouse.ID), UserID: userID, Warehouse: warehouse}
	_, err := r.db.Collection(warehousesCollection).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert warehouse %s: %w", warehouse.ID, err)
	}
	return nil
}

// DeleteWarehouse removes a warehouse record.
func (r *MongoDBRepository) DeleteWarehouse(ctx context.Context, userID, warehouseID string) error {
	if _, err := r.db.Collection(warehousesCollection).DeleteOne(ctx, bson.M{"_id": docID(userID, warehouseID)}); err != nil {
		return fmt.Errorf("delete warehouse %s: %w", warehouseID, err)
	}
	return nil
}

// ListItems returns the counting list of one warehouse.
func (r *MongoDBRepository) ListItems(ctx context.Context, userID, warehouseID string) ([]models.CountingListItem, error) {
	cursor, err := r.db.Collection(itemsCollection).Find(ctx, bson.M{"user_id": userID, "warehouse_id": warehouseID},
		options.Find().SetSort(bson.D{{Key: "barcode", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}
	var docs []itemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	out := make([]models.CountingListItem, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.CountingListItem)
	}
	return out, nil
}

// PutItem upserts one counting list item.
func (r *MongoDBRepository) PutItem(ctx context.Context, userID string, item models.CountingListItem) error {
	doc := itemDoc{ID: docID(userID, item.WarehouseID, item.Barcode), UserID: userID, CountingListItem: item}
	_, err := r.db.Collection(itemsCollection).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.Barcode, err)
	}
	return nil
}

// DeleteItem removes one counting list item.
func (r *MongoDBRepository) DeleteItem(ctx context.Context, userID, warehouseID, barcode string) error {
	if _, err := r.db.Collection(itemsCollection).DeleteOne(ctx, bson.M{"_id": docID(userID, warehouseID, barcode)}); err != nil {
		return fmt.Errorf("delete item %s: %w", barcode, err)
	}
	return nil
}

// BatchItems runs all operations in one multi-document transaction.
func (r *MongoDBRepository) BatchItems(ctx context.Context, userID, warehouseID string, ops []models.ItemOp) error {
	if len(ops) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(ops))
	for _, op := range ops {
		id := docID(userID, warehouseID, op.Barcode)
		switch op.Op {
		case models.ChangeUpsert:
			item := op.Item
			item.WarehouseID = warehouseID
			writes = append(writes, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": id}).
				SetReplacement(itemDoc{ID: id, UserID: userID, CountingListItem: item}).
				SetUpsert(true))
		case models.ChangeDelete:
			writes = append(writes, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": id}))
		}
	}

	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return r.db.Collection(itemsCollection).BulkWrite(sc, writes, options.BulkWrite().SetOrdered(true))
	})
	if err != nil {
		return fmt.Errorf("batch write %d item ops: %w", len(ops), err)
	}
	return nil
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *itemDoc `bson:"fullDocument"`
	TxnNumber    *int64   `bson:"txnNumber"`
	LSID         bson.Raw `bson:"lsid"`
}

func (e changeEvent) sameTxn(other changeEvent) bool {
	if e.TxnNumber == nil || other.TxnNumber == nil {
		return false
	}
	return *e.TxnNumber == *other.TxnNumber && bytes.Equal(e.LSID, other.LSID)
}

// SubscribeItems opens a change stream on one warehouse list. The stream is opened before
// the snapshot is read so no commit falls between the two.
func (r *MongoDBRepository) SubscribeItems(ctx context.Context, userID, warehouseID string, onChange func(models.ChangeSet), onError func(error)) (func(), error) {
	if onChange == nil {
		return nil, errors.New("onChange must not be nil")
	}
	if onError == nil {
		onError = func(error) {}
	}

	prefix := docID(userID, warehouseID) + keySeparator
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "fullDocument.user_id", Value: userID}, {Key: "fullDocument.warehouse_id", Value: warehouseID}},
		bson.D{
			{Key: "operationType", Value: "delete"},
			{Key: "documentKey._id", Value: bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(prefix)}}},
		},
	}}}}}}
	stream, err := r.db.Collection(itemsCollection).Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watch items: %w", err)
	}

	items, err := r.ListItems(ctx, userID, warehouseID)
	if err != nil {
		_ = stream.Close(context.Background())
		return nil, err
	}
	snapshot := models.ChangeSet{WarehouseID: warehouseID, Snapshot: true}
	for _, item := range items {
		snapshot.Changes = append(snapshot.Changes, models.ItemChange{Op: models.ChangeUpsert, Barcode: item.Barcode, Item: item})
	}
	onChange(snapshot)

	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.watch(watchCtx, stream, warehouseID, prefix, onChange, onError)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

// watch forwards change events in commit order. Events sharing a transaction are grouped
// into one ChangeSet; a group is flushed when the next event belongs elsewhere or the
// stream has nothing buffered.
func (r *MongoDBRepository) watch(ctx context.Context, stream *mongo.ChangeStream, warehouseID, prefix string, onChange func(models.ChangeSet), onError func(error)) {
	defer func() { _ = stream.Close(context.Background()) }()

	pending := models.ChangeSet{WarehouseID: warehouseID}
	var last changeEvent
	flush := func() {
		if len(pending.Changes) > 0 {
			onChange(pending)
		}
		pending = models.ChangeSet{WarehouseID: warehouseID}
	}

	for {
		if len(pending.Changes) > 0 {
			if !stream.TryNext(ctx) {
				if err := stream.Err(); err != nil {
					flush()
					r.streamFailed(ctx, err, onError)
					return
				}
				flush()
				continue
			}
		} else if !stream.Next(ctx) {
			r.streamFailed(ctx, stream.Err(), onError)
			return
		}

		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			r.logger.Error("decode change event", zap.Error(err))
			continue
		}
		change, ok := toItemChange(ev, prefix)
		if !ok {
			continue
		}
		if len(pending.Changes) > 0 && !ev.sameTxn(last) {
			flush()
		}
		pending.Changes = append(pending.Changes, change)
		last = ev
		if ev.TxnNumber == nil {
			flush()
		}
	}
}

func (r *MongoDBRepository) streamFailed(ctx context.Context, err error, onError func(error)) {
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("change stream closed")
	}
	r.logger.Warn("items change stream failed", zap.Error(err))
	onError(err)
}

func toItemChange(ev changeEvent, prefix string) (models.ItemChange, bool) {
	switch ev.OperationType {
	case "insert", "replace", "update":
		if ev.FullDocument == nil {
			return models.ItemChange{}, false
		}
		item := ev.FullDocument.CountingListItem
		return models.ItemChange{Op: models.ChangeUpsert, Barcode: item.Barcode, Item: item}, true
	case "delete":
		if !strings.HasPrefix(ev.DocumentKey.ID, prefix) {
			return models.ItemChange{}, false
		}
		return models.ItemChange{Op: models.ChangeDelete, Barcode: strings.TrimPrefix(ev.DocumentKey.ID, prefix)}, true
	default:
		return models.ItemChange{}, false
	}
}
