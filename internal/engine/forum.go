package engine

import (
	"fmt"

	"campuscal/internal/model"
)

// ForumIndex keeps forum id -> post references, most recent first.
type ForumIndex struct {
	store *Store
	posts map[string][]model.ForumPost
}

// NewForumIndex wires an index to store so that created events are posted
// to their forums and deleted events are withdrawn from every forum.
func NewForumIndex(store *Store) *ForumIndex {
	f := &ForumIndex{
		store: store,
		posts: make(map[string][]model.ForumPost),
	}
	store.OnCreate(f.add)
	store.OnDelete(f.remove)
	return f
}

func (f *ForumIndex) add(instances []*model.Event) {
	for _, ev := range instances {
		for _, forumID := range ev.PostedToForums {
			post := model.ForumPost{ForumID: forumID, EventID: ev.ID, CreatedAt: ev.CreatedAt}
			f.posts[forumID] = append([]model.ForumPost{post}, f.posts[forumID]...)
		}
	}
}

func (f *ForumIndex) remove(ev *model.Event) {
	for forumID, posts := range f.posts {
		kept := posts[:0]
		for _, p := range posts {
			if p.EventID != ev.ID {
				kept = append(kept, p)
			}
		}
		f.posts[forumID] = kept
	}
}

// PostsForForum resolves the forum's references against live events.
// References to events that no longer exist are skipped. A forum that has
// never received a post is reported as not found.
func (f *ForumIndex) PostsForForum(forumID string) ([]model.PostView, error) {
	posts, ok := f.posts[forumID]
	if !ok {
		return nil, fmt.Errorf("forum %q: %w", forumID, model.ErrNotFound)
	}
	out := make([]model.PostView, 0, len(posts))
	for _, p := range posts {
		ev, err := f.store.Get(p.EventID)
		if err != nil {
			continue
		}
		out = append(out, model.PostView{Event: ev, CreatedAt: p.CreatedAt})
	}
	return out, nil
}

// Forums returns the ids of every forum that has received a post.
func (f *ForumIndex) Forums() []string {
	out := make([]string, 0, len(f.posts))
	for id := range f.posts {
		out = append(out, id)
	}
	return out
}
