package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vilass86/cardgame/internal/db"
	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/game"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/repository"
	"github.com/vilass86/cardgame/internal/service"
	"github.com/vilass86/cardgame/internal/settlement"
	"github.com/vilass86/cardgame/internal/vrf"

	"github.com/pterm/pterm"
)

// replay re-derives a session's deal from its published seed and proof
// without trusting the server's stored outcome.
//
//	replay -api http://127.0.0.1:8080 -session <id>
//	replay -seed <hex> -session <id> -players a,b,c -ranker holdem
func main() {
	api := flag.String("api", "", "API base URL to fetch the session from")
	sessionID := flag.String("session", "", "session id")
	seedHex := flag.String("seed", "", "seed hex for an offline replay")
	players := flag.String("players", "", "comma separated addresses in seat order (offline)")
	rankerName := flag.String("ranker", game.RankerHoldem, "ranker (offline)")
	stake := flag.Int64("stake", 100, "stake per player (offline)")
	rakeBps := flag.Int64("rake-bps", 0, "rake in basis points (offline)")
	journal := flag.Bool("journal", false, "print the session's ledger journal from DATABASE_URL")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"), false)
	if *sessionID == "" {
		pterm.Error.Println("-session is required")
		os.Exit(2)
	}

	var (
		sess *domain.Session
		seed []byte
		err  error
	)
	switch {
	case *api != "":
		sess, seed, err = fetchAndVerify(*api, *sessionID)
	case *seedHex != "":
		seed, err = hex.DecodeString(*seedHex)
		sess = offlineSession(*sessionID, strings.Split(*players, ","), *rankerName, *stake, *rakeBps)
	default:
		err = fmt.Errorf("either -api or -seed is required")
	}
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	if err := render(sess, seed); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	if *journal {
		if err := printJournal(sess.ID); err != nil {
			pterm.Error.Println(err)
			os.Exit(1)
		}
	}
}

func offlineSession(id string, players []string, ranker string, stake, rakeBps int64) *domain.Session {
	s := &domain.Session{ID: id, StakePerPlayer: stake, RakeBps: rakeBps, Ranker: ranker}
	for i, a := range players {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		s.Players = append(s.Players, domain.Player{Address: a, Seat: i, StakeCommitted: true})
	}
	return s
}

// fetchAndVerify loads the session and its published randomness, then checks
// the proof locally against the published key.
func fetchAndVerify(api, id string) (*domain.Session, []byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	base := strings.TrimRight(api, "/") + "/api/v1/sessions/" + id

	var sess domain.Session
	if err := getJSON(client, base, &sess); err != nil {
		return nil, nil, err
	}
	var v service.Verification
	if err := getJSON(client, base+"/verify", &v); err != nil {
		return nil, nil, err
	}

	seed, err := hex.DecodeString(v.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("seed: %w", err)
	}
	proof, err := hex.DecodeString(v.Proof)
	if err != nil {
		return nil, nil, fmt.Errorf("proof: %w", err)
	}
	pub, err := vrf.ParsePublicKey(v.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	if err := vrf.Verify(pub, domain.Alpha(v.Nonce, sess.ID), seed, proof); err != nil {
		return nil, nil, fmt.Errorf("proof does not verify: %w", err)
	}
	pterm.Success.Printfln("proof for nonce %s verifies under %s", v.Nonce, short(v.PublicKey))

	if sess.Outcome != nil {
		local, err := game.Deal(seed, sess.ID, sess.Addresses(), sess.Outcome.Rules)
		if err != nil {
			return nil, nil, err
		}
		got, _ := local.Digest()
		want, _ := sess.Outcome.Digest()
		if got != want {
			return nil, nil, fmt.Errorf("stored outcome %s does not match replay %s", short(want), short(got))
		}
		pterm.Success.Printfln("stored outcome matches replay (%s)", short(got))
	}
	return &sess, seed, nil
}

func getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("GET %s: %d %s", url, resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func render(sess *domain.Session, seed []byte) error {
	ranker, err := game.RankerByName(sess.Ranker)
	if err != nil {
		return err
	}
	outcome, err := game.Deal(seed, sess.ID, sess.Addresses(), ranker.Rules())
	if err != nil {
		return err
	}
	res, err := settlement.Compute(outcome, ranker, sess.StakePerPlayer, sess.RakeBps)
	if err != nil {
		return err
	}

	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	var seats []pterm.Panel
	for _, p := range res.Payouts {
		hand, _ := outcome.HandAt(p.Seat)
		title := pterm.LightCyan(p.Address)
		if p.Winner {
			title = pterm.LightGreen(p.Address)
		}
		body := pterm.Sprintfln("%s\n%s\npaid %d", cards(hand.Cards), p.Description, p.Amount)
		seats = append(seats, pterm.Panel{Data: pbox.WithTitle(title).WithTitleTopCenter().Sprint(body)})
	}

	rows := [][]pterm.Panel{seats}
	if len(outcome.Board) > 0 {
		board := pbox.WithTitle(pterm.LightYellow("|BOARD|")).WithTitleTopCenter().Sprint(cards(outcome.Board))
		rows = append([][]pterm.Panel{{{Data: board}}}, rows...)
	}
	if err := pterm.DefaultPanel.WithPanels(rows).Render(); err != nil {
		return err
	}

	digest, _ := outcome.Digest()
	pterm.Info.Printfln("pool %d, rake %d, distributed %d, digest %s", res.Pool, res.Rake, res.Distributable, short(digest))
	return nil
}

func printJournal(sessionID string) error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	pool := db.Connect(dsn)
	defer pool.Close()

	txs, err := repository.NewTransactionRepository(pool).ListBySession(context.Background(), sessionID)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"At", "Account", "Type", "Amount"}}
	for _, t := range txs {
		data = append(data, []string{t.CreatedAt.Format(time.RFC3339), t.AccountID, t.Type, fmt.Sprint(t.Amount)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func cards(cs []game.Card) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		s := c.String()
		switch c.Suit() {
		case 1, 2:
			parts[i] = pterm.LightRed(s)
		default:
			parts[i] = pterm.Black(s)
		}
	}
	return strings.Join(parts, " ")
}

func short(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:16] + "…"
}
