package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ayush/socialgate/internal/apperr"
)

// SQLSTATE codes and classes we map.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgClassIntegrity      = "23"
	pgClassConnection     = "08"
	pgClassResources      = "53"
	pgClassOperator       = "57"
)

// AsStorageError maps a driver error from any of our backends to a storage
// apperr. It reports false for errors that are not recognizably storage
// failures.
func AsStorageError(err error) (*apperr.Error, bool) {
	if err == nil {
		return nil, false
	}
	if ae, ok := apperr.As(err); ok && ae.Kind == apperr.KindStorage {
		return ae, true
	}

	// postgres
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return apperr.Storage(apperr.StorageDuplicate, err), true
		case pgErr.Code == pgForeignKeyViolation, strings.HasPrefix(pgErr.Code, pgClassIntegrity):
			return apperr.Storage(apperr.StorageInvalidReference, err), true
		case strings.HasPrefix(pgErr.Code, pgClassConnection),
			strings.HasPrefix(pgErr.Code, pgClassResources),
			strings.HasPrefix(pgErr.Code, pgClassOperator):
			return apperr.Storage(apperr.StorageUnavailable, err), true
		}
		return nil, false
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Storage(apperr.StorageNotFound, err), true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return apperr.Storage(apperr.StorageUnavailable, err), true
	}

	// mongo
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperr.Storage(apperr.StorageNotFound, err), true
	case mongo.IsDuplicateKeyError(err):
		return apperr.Storage(apperr.StorageDuplicate, err), true
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return apperr.Storage(apperr.StorageUnavailable, err), true
	}

	// redis
	if errors.Is(err, redis.Nil) {
		return apperr.Storage(apperr.StorageNotFound, err), true
	}
	if errors.Is(err, redis.ErrClosed) {
		return apperr.Storage(apperr.StorageUnavailable, err), true
	}

	// minio
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		switch minioErr.Code {
		case "NoSuchKey", "NoSuchBucket":
			return apperr.Storage(apperr.StorageNotFound, err), true
		case "SlowDown", "ServiceUnavailable", "InternalError", "RequestTimeout":
			return apperr.Storage(apperr.StorageUnavailable, err), true
		}
	}

	return nil, false
}

// wrap converts a driver error at its origin; unrecognized errors pass
// through unchanged.
func wrap(err error) error {
	if ae, ok := AsStorageError(err); ok {
		return ae
	}
	return err
}
