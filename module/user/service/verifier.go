package service

import (
	"context"

	usermodel "PulseIM/module/user/model"
	"PulseIM/tools/errs"
	"PulseIM/tools/security"
)

// Verifier validates a bearer credential and resolves it to an
// admitted identity. Both failure modes refuse the connection before
// it ever reaches the presence registry.
type Verifier struct {
	opts  security.Options
	users IdentityStore
}

func NewVerifier(opts security.Options, users IdentityStore) *Verifier {
	return &Verifier{opts: opts, users: users}
}

func (v *Verifier) Authenticate(ctx context.Context, token string) (*usermodel.Identity, error) {
	if token == "" {
		return nil, errs.ErrTokenInvalid.WrapMsg("empty token")
	}
	userID, err := security.Verify(v.opts, token)
	if err != nil {
		return nil, err
	}
	u, err := v.users.GetUser(ctx, userID)
	if err != nil {
		if errs.Code(err) == errs.CodeNotFound {
			return nil, errs.ErrTokenInvalid.WrapMsg("unknown identity", "user_id", userID)
		}
		return nil, err
	}
	if u.Banned {
		return nil, errs.ErrIdentityBanned.WrapMsg("user_id", userID)
	}
	return &usermodel.Identity{UserID: u.UserID, Nickname: u.Nickname}, nil
}
