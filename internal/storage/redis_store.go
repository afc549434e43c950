package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"music_police/internal/model"
)

// RedisTeamStore implements TeamStore on a Redis string key per team
type RedisTeamStore struct {
	client redis.Cmdable
	cipher *TokenCipher
}

// NewRedisTeamStore creates a new RedisTeamStore instance
func NewRedisTeamStore(client redis.Cmdable, cipher *TokenCipher) *RedisTeamStore {
	return &RedisTeamStore{client: client, cipher: cipher}
}

func (s *RedisTeamStore) GetTeam(ctx context.Context, teamID string) (model.TeamCredential, error) {
	data, err := s.client.Get(ctx, teamKey(teamID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.TeamCredential{}, ErrTeamNotFound
	}
	if err != nil {
		return model.TeamCredential{}, fmt.Errorf("failed to get team from redis: %w", err)
	}
	return openTeam(s.cipher, data)
}

func (s *RedisTeamStore) PutTeam(ctx context.Context, cred model.TeamCredential) error {
	data, err := sealTeam(s.cipher, cred)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, teamKey(cred.TeamID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store team in redis: %w", err)
	}
	return nil
}
