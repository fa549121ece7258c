// Package ledger implementa a corrente de lançamentos encadeada por hash e o
// serviço de append que mantém os saldos materializados. Um único escritor
// confiável (a plataforma) dispensa consenso: o encadeamento dá evidência de
// adulteração e trilha de auditoria determinística.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

// CanonicalData serializa o payload de forma determinística. json.Marshal
// emite chaves de map em ordem ordenada, então o mesmo payload lógico produz
// sempre os mesmos bytes. Payload vazio vira "{}".
func CanonicalData(data map[string]string) string {
	if len(data) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(data)
	return string(b)
}

// HashTimestamp normaliza o instante usado no hash. Postgres guarda
// timestamptz com precisão de microssegundo; sem o truncamento o replay a
// partir das linhas gravadas não reproduziria o hash.
func HashTimestamp(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Microsecond)
}

// ComputeHash calcula o hash de um lançamento a partir dos campos que o
// definem e do hash anterior. Campos nulos entram como string vazia.
func ComputeHash(from, to *string, amountCents int64, typ storage.TxType, ts time.Time, prev *string, data map[string]string) string {
	parts := []string{
		deref(from),
		deref(to),
		strconv.FormatInt(amountCents, 10),
		string(typ),
		HashTimestamp(ts).Format(time.RFC3339Nano),
		deref(prev),
		CanonicalData(data),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Recompute devolve o hash esperado de um lançamento já gravado, usando o
// hash recomputado do antecessor em vez do prev_hash armazenado.
func Recompute(t storage.LedgerTransaction, prev *string) string {
	return ComputeHash(t.FromUser, t.ToUser, t.AmountCents, t.Type, t.CreatedAt, prev, t.Data)
}

// Replay percorre a corrente desde o gênese recomputando cada hash.
// Devolve o índice do primeiro lançamento divergente, ou -1 se a corrente
// está íntegra. Também acusa prev_hash armazenado fora da sequência.
func Replay(txs []storage.LedgerTransaction) (firstBad int) {
	var prev *string
	for i, t := range txs {
		if !equalPtr(t.PrevHash, prev) {
			return i
		}
		if Recompute(t, prev) != t.Hash {
			return i
		}
		h := t.Hash
		prev = &h
	}
	return -1
}

// ReplayBalances reconstrói os saldos que a corrente implica, para conferir
// contra a tabela materializada.
func ReplayBalances(txs []storage.LedgerTransaction) map[string]int64 {
	out := map[string]int64{}
	for _, t := range txs {
		if t.FromUser != nil {
			out[*t.FromUser] -= t.AmountCents
		}
		if t.ToUser != nil {
			out[*t.ToUser] += t.AmountCents
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
