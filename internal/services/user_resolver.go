package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"friendsync/internal/models"
	"friendsync/internal/storage"
)

// UserResolver fetches full profile summaries for a set of identities,
// respecting the store's multi-key-query fan-out limit by querying in
// fixed-size chunks issued concurrently.
type UserResolver struct {
	users storage.UserRepository
}

// NewUserResolver creates a new UserResolver instance.
func NewUserResolver(users storage.UserRepository) *UserResolver {
	return &UserResolver{users: users}
}

type chunkResult struct {
	summaries []models.UserSummary
	err       error
}

// Resolve fetches summaries for the given identities, one concurrent query
// per chunk of at most storage.MaxKeysPerQuery keys. Results are merged as
// they arrive, deduplicated by identity and sorted by display name.
//
// Partial failure is visible rather than discarded: the union of all
// successfully fetched chunks is returned together with the first error.
// Callers publishing the result are expected to fail closed (clear the
// published list) when err is non-nil.
func (r *UserResolver) Resolve(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	if len(ids) == 0 {
		return []models.UserSummary{}, nil
	}

	chunks := chunkIdentities(ids, storage.MaxKeysPerQuery)
	results := make(chan chunkResult, len(chunks))

	var wg sync.WaitGroup
	for _, chunk := range chunks {
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			summaries, err := r.users.GetSummariesByIDs(ctx, keys)
			if err != nil {
				results <- chunkResult{err: fmt.Errorf("批量获取用户信息失败: %w", err)}
				return
			}
			results <- chunkResult{summaries: summaries}
		}(chunk)
	}
	wg.Wait()
	close(results)

	merged := make(map[string]models.UserSummary, len(ids))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		for _, s := range res.summaries {
			merged[s.ID] = s
		}
	}

	return sortSummaries(merged), firstErr
}

// chunkIdentities 将 identity 列表按 size 切分，去除重复项。
func chunkIdentities(ids []string, size int) [][]string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	var chunks [][]string
	for len(unique) > size {
		chunks = append(chunks, unique[:size])
		unique = unique[size:]
	}
	if len(unique) > 0 {
		chunks = append(chunks, unique)
	}
	return chunks
}

// sortSummaries 按显示名排序（同名时按 ID），保证输出确定。
func sortSummaries(merged map[string]models.UserSummary) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out
}
