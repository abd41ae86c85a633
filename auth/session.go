package auth

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-arrower/api/postgres"
)

var ErrSessionStoreFailed = errors.New("creating session store failed")

// SessionOptions returns the cookie options of the auth settings.
func SessionOptions(settings Settings) *sessions.Options {
	maxAge := int(settings.SessionCookieAge.Seconds())
	if maxAge == 0 {
		const twoWeeks = 86400 * 14
		maxAge = twoWeeks
	}

	return &sessions.Options{
		Path:     "/",
		Domain:   "",
		MaxAge:   maxAge,
		Secure:   settings.SessionCookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCookieStore keeps the whole session in the cookie, it is used without a database.
func NewCookieStore(settings Settings, keyPairs ...[]byte) *sessions.CookieStore {
	store := sessions.NewCookieStore(keyPairs...)
	store.Options = SessionOptions(settings)

	return store
}

// NewPGSessionStore keeps the session data in the sessions table, the cookie only holds the session key.
func NewPGSessionStore(ctx context.Context, pgx *pgxpool.Pool, settings Settings, keyPairs ...[]byte) (*PGSessionStore, error) {
	if pgx == nil {
		return nil, fmt.Errorf("%w: missing postgres dependency", ErrSessionStoreFailed)
	}

	if err := pgx.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: could not reach postgres: %w", ErrSessionStoreFailed, err)
	}

	return &PGSessionStore{
		pgx:     pgx,
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		Codecs:  securecookie.CodecsFromPairs(keyPairs...),
		Options: SessionOptions(settings),
	}, nil
}

type PGSessionStore struct {
	pgx *pgxpool.Pool
	sb  sq.StatementBuilderType

	Options *sessions.Options // default configuration
	Codecs  []securecookie.Codec
}

var _ sessions.Store = (*PGSessionStore)(nil)

// Get returns a session for the given name after adding it to the registry.
func (ss *PGSessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(ss, name) //nolint:wrapcheck // export session.Store errors, as caller expects it
}

// New returns a session for the given name without adding it to the registry.
func (ss *PGSessionStore) New(r *http.Request, name string) (*sessions.Session, error) { //nolint:varnamelen
	session := sessions.NewSession(ss, name)
	opts := *ss.Options
	session.Options = &opts
	session.IsNew = true
	session.ID = newSessionID()

	c, errCookie := r.Cookie(name)
	if errCookie != nil {
		return session, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, ss.Codecs...); err != nil {
		return session, err //nolint:wrapcheck // export session.Store errors, as caller expects it
	}

	data, err := ss.load(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) { // session got deleted or is expired => start a new one
		return session, nil
	}

	if err != nil {
		return session, err
	}

	if err := securecookie.DecodeMulti(session.Name(), string(data), &session.Values, ss.Codecs...); err != nil {
		return session, err //nolint:wrapcheck // export session.Store errors, as caller expects it
	}

	session.ID = id
	session.IsNew = false

	return session, nil
}

// Save adds a single session to the response.
//
// If the Options.MaxAge of the session is < 0 then the session will be
// deleted from the db table. With this process it enforces the proper
// session cookie handling so no need to trust in the cookie management in the
// web browser.
func (ss *PGSessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error { //nolint:varnamelen,lll
	if session.Options.MaxAge < 0 {
		if err := ss.delete(r.Context(), session.ID); err != nil {
			return err
		}

		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))

		return nil
	}

	if session.ID == "" {
		session.ID = newSessionID()
	}

	if err := ss.save(r.Context(), session); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, ss.Codecs...)
	if err != nil {
		return err //nolint:wrapcheck // export session.Store errors, as caller expects it
	}

	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))

	return nil
}

// DeleteExpired removes all expired sessions from the database.
func (ss *PGSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	query, args, err := ss.sb.Delete("public.sessions").Where("expires_at_utc <= NOW()").ToSql()
	if err != nil {
		return 0, fmt.Errorf("could not build query: %w", err)
	}

	tag, err := postgres.ConnOrTX(ctx, ss.pgx).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("could not delete expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (ss *PGSessionStore) load(ctx context.Context, id string) ([]byte, error) {
	query, args, err := ss.sb.Select("data").From("public.sessions").
		Where(sq.Eq{"key": []byte(id)}).
		Where("expires_at_utc > NOW()").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}

	var data []byte

	err = postgres.ConnOrTX(ctx, ss.pgx).QueryRow(ctx, query, args...).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("could not load session: %w", err)
	}

	return data, nil
}

func (ss *PGSessionStore) save(ctx context.Context, session *sessions.Session) error {
	encoded, err := securecookie.EncodeMulti(session.Name(), session.Values, ss.Codecs...)
	if err != nil {
		return err //nolint:wrapcheck // export session.Store errors, as caller expects it
	}

	var userID any
	if id, ok := session.Values[SessKeyUserID].(string); ok && id != "" {
		userID = id
	}

	query, args, err := ss.sb.Insert("public.sessions").
		Columns("key", "data", "expires_at_utc", "user_id").
		Values([]byte(session.ID), []byte(encoded),
			time.Now().UTC().Add(time.Second*time.Duration(session.Options.MaxAge)), userID).
		Suffix(`ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, expires_at_utc = EXCLUDED.expires_at_utc,
			user_id = EXCLUDED.user_id, updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("could not build query: %w", err)
	}

	if _, err = postgres.ConnOrTX(ctx, ss.pgx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("could not save session: %w", err)
	}

	return nil
}

func (ss *PGSessionStore) delete(ctx context.Context, id string) error {
	query, args, err := ss.sb.Delete("public.sessions").Where(sq.Eq{"key": []byte(id)}).ToSql()
	if err != nil {
		return fmt.Errorf("could not build query: %w", err)
	}

	if _, err = postgres.ConnOrTX(ctx, ss.pgx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("could not delete session: %w", err)
	}

	return nil
}

func newSessionID() string {
	const keyLength = 32

	return strings.TrimRight(
		base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(keyLength)),
		"=",
	)
}
