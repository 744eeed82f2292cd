package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cfilipov/blogd/internal/models"
)

// ProfileCookie names the cookie carrying the signed profile token.
const ProfileCookie = "blogd_profile"

const profileCookieMaxAge = 365 * 24 * time.Hour

var errNoProfile = errors.New("no profile cookie")

type profileKey struct{}

// ProfileFrom returns the profile ID the middleware attached to ctx.
func ProfileFrom(ctx context.Context) string {
	if p, ok := ctx.Value(profileKey{}).(*models.Profile); ok {
		return p.ID
	}
	return ""
}

// resolveProfile returns the profile named by the request cookie, if the
// cookie is valid. Profiles that were issued but never saved are rebuilt
// from the token.
func (app *App) resolveProfile(r *http.Request) (*models.Profile, error) {
	cookie, err := r.Cookie(ProfileCookie)
	if err != nil {
		return nil, errNoProfile
	}
	claims, err := models.VerifyToken(cookie.Value, app.ProfileSecret)
	if err != nil {
		return nil, err
	}
	p, err := app.Profiles.Find(claims.Subject)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = claims.Profile()
	}
	if !claims.Matches(p) {
		return nil, fmt.Errorf("profile %q: %w", claims.Subject, models.ErrProfileNotFound)
	}
	return p, nil
}

// ProfileMiddleware attaches a profile to every request, issuing a new one
// with a fresh cookie when the request has none. Issued profiles are only
// saved once they are used, see saveProfile.
func (app *App) ProfileMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := app.resolveProfile(r)
		if err != nil {
			if !errors.Is(err, errNoProfile) {
				slog.Debug("profile cookie rejected", "err", err)
			}
			p, err = app.issueProfile(w)
			if err != nil {
				slog.Error("issue profile", "err", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), profileKey{}, p)))
	})
}

func (app *App) issueProfile(w http.ResponseWriter) (*models.Profile, error) {
	p := models.NewProfile()
	token, err := models.CreateToken(p, app.ProfileSecret)
	if err != nil {
		return nil, fmt.Errorf("sign profile token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ProfileCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(profileCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   app.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Debug("issued profile", "profile", p.ID)
	return p, nil
}

// saveProfile stores the request's profile before it writes a preference.
func (app *App) saveProfile(ctx context.Context) error {
	p, ok := ctx.Value(profileKey{}).(*models.Profile)
	if !ok {
		return errNoProfile
	}
	return app.Profiles.Ensure(p)
}

// AuthenticateWS resolves the profile of a websocket upgrade and saves it.
// Upgrades never issue profiles; the page load that precedes them did.
func (app *App) AuthenticateWS(r *http.Request) (string, error) {
	p, err := app.resolveProfile(r)
	if err != nil {
		return "", err
	}
	if err := app.Profiles.Ensure(p); err != nil {
		return "", err
	}
	return p.ID, nil
}
