package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned when the bridge cannot be reached, times out,
// or answers with an error for a light read or write.
var ErrUnavailable = errors.New("hue bridge unavailable")

// Client reads and writes individual lights on a Hue bridge (v1 API)
type Client struct {
	address    string
	token      string
	timeout    time.Duration
	bridge     *huego.Bridge
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Hue client. A non-positive rps disables rate limiting.
func NewClient(address, token string, timeout time.Duration, rps float64) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}

	// huego adds the scheme lazily on first use, which races under concurrent reads
	host := address
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}

	return &Client{
		address:    strings.TrimPrefix(address, "http://"),
		token:      token,
		timeout:    timeout,
		bridge:     huego.New(host, token),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// Address returns the bridge address
func (c *Client) Address() string {
	return c.address
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// ReadLight returns the current state of one light
func (c *Client) ReadLight(ctx context.Context, id int) (LightState, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return LightState{}, unavailable("read", id, err)
	}

	light, err := c.bridge.GetLightContext(ctx, id)
	if err != nil {
		return LightState{}, unavailable("read", id, err)
	}
	return stateFromHuego(light.State), nil
}

// WriteLight applies a partial state to one light
func (c *Client) WriteLight(ctx context.Context, id int, update StateUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return unavailable("write", id, err)
	}

	body, err := json.Marshal(update)
	if err != nil {
		return err
	}

	resp, err := c.v1Request(ctx, http.MethodPut, fmt.Sprintf("lights/%d/state", id), bytes.NewReader(body))
	if err != nil {
		return unavailable("write", id, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return unavailable("write", id, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody)))
	}
	if err := bridgeError(respBody); err != nil {
		return unavailable("write", id, err)
	}

	log.Debug().
		Int("light", id).
		RawJSON("state", body).
		Msg("Light state written")

	return nil
}

// Lights lists all lights known to the bridge, ordered by id
func (c *Client) Lights(ctx context.Context) ([]Light, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	raw, err := c.bridge.GetLightsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list lights: %v", ErrUnavailable, err)
	}

	lights := make([]Light, 0, len(raw))
	for _, l := range raw {
		lights = append(lights, Light{ID: l.ID, Name: l.Name, Type: l.Type})
	}
	sort.Slice(lights, func(i, j int) bool { return lights[i].ID < lights[j].ID })
	return lights, nil
}

// Rooms lists the bridge groups of type "Room", ordered by id
func (c *Client) Rooms(ctx context.Context) ([]Room, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	groups, err := c.bridge.GetGroupsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list groups: %v", ErrUnavailable, err)
	}

	rooms := make([]Room, 0, len(groups))
	for _, g := range groups {
		if g.Type != "Room" {
			continue
		}
		room := Room{ID: g.ID, Name: g.Name}
		for _, lightID := range g.Lights {
			id, err := strconv.Atoi(lightID)
			if err != nil {
				log.Warn().Str("group", g.Name).Str("light", lightID).Msg("Skipping non-numeric light id")
				continue
			}
			room.Lights = append(room.Lights, id)
		}
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) v1URL(path string) string {
	return fmt.Sprintf("http://%s/api/%s/%s", c.address, c.token, path)
}

func (c *Client) v1Request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.v1URL(path), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// bridgeError extracts the first error from a v1 response body like
// [{"error":{"type":201,"description":"..."}}]. Bridges answer 200 even on failure.
func bridgeError(body []byte) error {
	var results []struct {
		Error *struct {
			Type        int    `json:"type"`
			Address     string `json:"address"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return nil
	}
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("bridge error %d at %s: %s", r.Error.Type, r.Error.Address, r.Error.Description)
		}
	}
	return nil
}

func unavailable(op string, id int, err error) error {
	return fmt.Errorf("%w: %s light %d: %v", ErrUnavailable, op, id, err)
}
