package profile

import (
	"context"
	"fmt"

	"github.com/spigell/prism/internal/store"
)

// Save stores the profile under profiles/current_user.
func Save(ctx context.Context, st store.Store, p Profile) error {
	if err := st.Set(ctx, store.CollectionProfiles, store.CurrentProfileID, store.Document(p)); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

// Load returns the stored profile or store.ErrNotFound.
func Load(ctx context.Context, st store.Store) (Profile, error) {
	doc, err := st.Get(ctx, store.CollectionProfiles, store.CurrentProfileID)
	if err != nil {
		return nil, err
	}
	return Profile(doc), nil
}

// Delete removes the stored profile. Deleting a missing profile succeeds.
func Delete(ctx context.Context, st store.Store) error {
	if err := st.Delete(ctx, store.CollectionProfiles, store.CurrentProfileID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
