package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"music_police/internal/model"
)

// S3API is the subset of the S3 client used by S3TeamStore
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3TeamStore implements TeamStore using AWS S3
type S3TeamStore struct {
	client     S3API
	bucketName string
	cipher     *TokenCipher
}

// NewS3TeamStore creates a new S3TeamStore instance
func NewS3TeamStore(client S3API, bucketName string, cipher *TokenCipher) *S3TeamStore {
	return &S3TeamStore{
		client:     client,
		bucketName: bucketName,
		cipher:     cipher,
	}
}

// GetTeam retrieves and decrypts the credential stored for teamID
func (s *S3TeamStore) GetTeam(ctx context.Context, teamID string) (model.TeamCredential, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(teamKey(teamID)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return model.TeamCredential{}, ErrTeamNotFound
		}
		return model.TeamCredential{}, fmt.Errorf("failed to get team from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return model.TeamCredential{}, fmt.Errorf("failed to read team object: %w", err)
	}
	return openTeam(s.cipher, data)
}

// PutTeam encrypts and stores the credential under its team id
func (s *S3TeamStore) PutTeam(ctx context.Context, cred model.TeamCredential) error {
	data, err := sealTeam(s.cipher, cred)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(teamKey(cred.TeamID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to store team in S3: %w", err)
	}
	return nil
}
