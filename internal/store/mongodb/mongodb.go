// Package mongodb implements the user store on MongoDB. Balances are stored
// as Decimal128 values holding integer wei, so $inc arithmetic is exact and
// the debit precondition is a native single-document conditional update.
package mongodb

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"deposit-bridge-go/internal/models"
	"deposit-bridge-go/internal/store"
)

const (
	usersCollection    = "users"
	depositsCollection = "deposits"
)

// Compile-time check: *Store must satisfy store.UserStore.
var _ store.UserStore = (*Store)(nil)

// Store is a MongoDB-backed user store.
type Store struct {
	client   *mgo.Client
	users    *mgo.Collection
	deposits *mgo.Collection
}

type mongoAccount struct {
	Balance   primitive.Decimal128 `bson:"balance"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

type mongoUser struct {
	Id            string       `bson:"_id"`
	WalletAddress string       `bson:"walletAddress"`
	CreatedAt     time.Time    `bson:"createdAt"`
	LastFundedAt  *time.Time   `bson:"lastFundedAt,omitempty"`
	Account       mongoAccount `bson:"account"`
}

// New connects to MongoDB, pings it and ensures the unique indexes the store
// contract relies on (walletAddress for users, txHash for deposits).
func New(ctx context.Context, cfg models.StoreConfig) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mgo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping mongodb: %w", err)
	}

	database := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		users:    database.Collection(usersCollection),
		deposits: database.Collection(depositsCollection),
	}

	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	zap.L().Info("MongoDB store initialized", zap.String("database", cfg.Database))
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mgo.IndexModel{
		Keys:    bson.D{{Key: "walletAddress", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("unable to create walletAddress index: %w", err)
	}

	_, err = s.deposits.Indexes().CreateOne(ctx, mgo.IndexModel{
		Keys:    bson.D{{Key: "txHash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("unable to create txHash index: %w", err)
	}

	return nil
}

// Close disconnects the client. Must be called at termination time.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	return s.getUser(ctx, bson.M{"walletAddress": address})
}

func (s *Store) GetUserById(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, bson.M{"_id": id})
}

func (s *Store) getUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc mongoUser
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mgo.ErrNoDocuments {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("unable to query user: %w", err)
	}
	return doc.toModel()
}

func (s *Store) InsertUser(ctx context.Context, user *models.User) error {
	balance, err := decimal128FromBig(user.Account.BalanceWei)
	if err != nil {
		return err
	}

	doc := mongoUser{
		Id:            user.Id,
		WalletAddress: user.WalletAddress,
		CreatedAt:     user.CreatedAt,
		LastFundedAt:  user.LastFundedAt,
		Account: mongoAccount{
			Balance:   balance,
			UpdatedAt: user.Account.UpdatedAt,
		},
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mgo.IsDuplicateKeyError(err) {
			return store.ErrUserExists
		}
		return fmt.Errorf("unable to insert user: %w", err)
	}

	return nil
}

// CreditBalance is a single updateOne with $inc; there is no read-modify-write
// window. A zero matched count means no user owns the address.
func (s *Store) CreditBalance(ctx context.Context, address string, amountWei *big.Int) (bool, error) {
	inc, err := decimal128FromBig(amountWei)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	res, err := s.users.UpdateOne(ctx,
		bson.M{"walletAddress": address},
		bson.M{
			"$inc": bson.M{"account.balance": inc},
			"$set": bson.M{"account.updatedAt": now, "lastFundedAt": now},
		})
	if err != nil {
		return false, fmt.Errorf("unable to credit balance: %w", err)
	}

	return res.MatchedCount > 0, nil
}

// DebitBalance issues one findOneAndUpdate whose filter carries the
// balance >= amount precondition, returning the post-image. No document means
// the debit was denied (insufficient funds or unknown user).
func (s *Store) DebitBalance(ctx context.Context, id string, amountWei *big.Int) (*models.User, error) {
	gte, err := decimal128FromBig(amountWei)
	if err != nil {
		return nil, err
	}
	dec, err := decimal128FromBig(new(big.Int).Neg(amountWei))
	if err != nil {
		return nil, err
	}

	var doc mongoUser
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "account.balance": bson.M{"$gte": gte}},
		bson.M{
			"$inc": bson.M{"account.balance": dec},
			"$set": bson.M{"account.updatedAt": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if err == mgo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to debit balance: %w", err)
	}

	return doc.toModel()
}

func (s *Store) RecordDeposit(ctx context.Context, dep models.DepositEvent) error {
	value, err := decimal128FromBig(dep.ValueWei)
	if err != nil {
		return err
	}

	_, err = s.deposits.InsertOne(ctx, bson.M{
		"txHash":      dep.TxHash,
		"from":        dep.From,
		"value":       value,
		"blockNumber": int64(dep.BlockNumber),
		"creditedAt":  time.Now().UTC(),
	})
	if err != nil {
		if mgo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateDeposit
		}
		return fmt.Errorf("unable to record deposit: %w", err)
	}

	return nil
}

func (u mongoUser) toModel() (*models.User, error) {
	balance, ok := new(big.Int).SetString(u.Account.Balance.String(), 10)
	if !ok {
		return nil, fmt.Errorf("non-integer balance %q for user %s", u.Account.Balance.String(), u.Id)
	}

	return &models.User{
		Id:            u.Id,
		WalletAddress: u.WalletAddress,
		CreatedAt:     u.CreatedAt,
		LastFundedAt:  u.LastFundedAt,
		Account: models.Account{
			BalanceWei: balance,
			UpdatedAt:  u.Account.UpdatedAt,
		},
	}, nil
}

// maxDecimal128Digits is the Decimal128 significand capacity. ParseDecimal128
// rounds longer values instead of erroring, so the bound is enforced here; a
// rounded balance would silently break exact integer arithmetic.
const maxDecimal128Digits = 34

func decimal128FromBig(v *big.Int) (primitive.Decimal128, error) {
	s := v.String()
	if len(strings.TrimPrefix(s, "-")) > maxDecimal128Digits {
		return primitive.Decimal128{}, fmt.Errorf("amount %s exceeds Decimal128 integer precision", s)
	}

	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("amount %s does not fit Decimal128: %w", s, err)
	}
	return d, nil
}
