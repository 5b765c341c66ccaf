package posts

import (
	"context"
	"fmt"
)

// SampleFixtures provides sample posts for seeding a development database
var SampleFixtures = []NewPost{
	{
		Title:   "Hello, world",
		Content: "This is the first post on a fresh inkpost install.",
	},
	{
		Title:   "Writing posts",
		Content: "  Sign in at /admin to write a post.\n\nLeading whitespace is dropped when posts are shown.",
	},
	{
		Title:   "O'Brien's notes",
		Content: "Quotes and semicolons; like these -- are stored as written.",
	},
}

// Seed inserts fixtures in order and returns how many were created
func Seed(ctx context.Context, repo *Repository, fixtures []NewPost) (int, error) {
	created := 0
	for _, fx := range fixtures {
		if err := repo.Create(ctx, fx); err != nil {
			return created, fmt.Errorf("seed %q: %w", fx.Title, err)
		}
		created++
	}
	return created, nil
}
