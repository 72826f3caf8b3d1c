package session

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// Serializer names accepted by NewDjangoDecoder.
const (
	SerializerPickle = "pickle"
	SerializerJSON   = "json"
)

const (
	authUserIDKey = "_auth_user_id"
	// Django's SessionBase._hash salts with "django.contrib.sessions" + class name.
	defaultKeySalt = "django.contrib.sessionsSessionStore"
)

// DjangoDecoder reads the user id out of a Django database-backed session.
//
// The stored payload is base64(<hex hash>:<serialized dict>). The dict is a
// pickle or a JSON object. When SecretKey is set the hash is verified and
// a tampered payload decodes to no user.
type DjangoDecoder struct {
	Serializer string
	SecretKey  string
	KeySalt    string
}

// NewDjangoDecoder validates the serializer name and returns a decoder.
func NewDjangoDecoder(serializer, secretKey string) (*DjangoDecoder, error) {
	switch serializer {
	case SerializerPickle, SerializerJSON:
	default:
		return nil, fmt.Errorf("unknown session serializer %q (must be 'pickle' or 'json')", serializer)
	}
	return &DjangoDecoder{Serializer: serializer, SecretKey: secretKey, KeySalt: defaultKeySalt}, nil
}

// Decode implements feed.SessionDecoder.
func (d *DjangoDecoder) Decode(sessionData string) (feed.UserID, bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sessionData))
	if err != nil {
		return 0, false
	}
	hash, serialized, found := strings.Cut(string(raw), ":")
	if !found {
		return 0, false
	}
	if d.SecretKey != "" && !d.validHash(hash, serialized) {
		return 0, false
	}

	var value any
	switch d.Serializer {
	case SerializerJSON:
		value, err = jsonUserID(serialized)
	default:
		value, err = pickleUserID(serialized)
	}
	if err != nil {
		return 0, false
	}
	return toUserID(value)
}

func (d *DjangoDecoder) validHash(hash, serialized string) bool {
	salt := d.KeySalt
	if salt == "" {
		salt = defaultKeySalt
	}
	key := sha1.Sum([]byte(salt + d.SecretKey))
	mac := hmac.New(sha1.New, key[:])
	mac.Write([]byte(serialized))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(hash))
}

func jsonUserID(serialized string) (any, error) {
	var session map[string]any
	dec := json.NewDecoder(strings.NewReader(serialized))
	dec.UseNumber()
	if err := dec.Decode(&session); err != nil {
		return nil, err
	}
	value, ok := session[authUserIDKey]
	if !ok {
		return nil, fmt.Errorf("no %s in session", authUserIDKey)
	}
	return value, nil
}

func pickleUserID(serialized string) (any, error) {
	obj, err := pickle.Loads(serialized)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*types.Dict)
	if !ok {
		return nil, fmt.Errorf("session pickle is %T, not a dict", obj)
	}
	value, ok := dict.Get(authUserIDKey)
	if !ok {
		return nil, fmt.Errorf("no %s in session", authUserIDKey)
	}
	return value, nil
}

// toUserID accepts the representations Django has used for the auth id.
func toUserID(value any) (feed.UserID, bool) {
	var id int64
	switch v := value.(type) {
	case int:
		id = int64(v)
	case int64:
		id = v
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		id = n
	case *big.Int:
		if !v.IsInt64() {
			return 0, false
		}
		id = v.Int64()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		id = n
	default:
		return 0, false
	}
	uid := feed.UserID(id)
	return uid, uid.Valid()
}
