package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailflow-app/mailflow/internal/ledger"
	"github.com/mailflow-app/mailflow/internal/triage"
)

func TestRunClassifyArgs(t *testing.T) {
	var out bytes.Buffer
	err := runClassify(&out, strings.NewReader(""), triage.New(nil),
		[]string{"Qual", "o", "status", "do", "chamado", "48213?"}, classifyOptions{})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Categoria: Produtivo")
	assert.Contains(t, out.String(), "referente ao chamado 48213")
}

func TestRunClassifyStdinJSON(t *testing.T) {
	var out bytes.Buffer
	err := runClassify(&out, strings.NewReader("Aproveite o desconto imperdível!"), triage.New(nil),
		nil, classifyOptions{json: true, explain: true})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "Unproductive", got["category"])
	assert.Equal(t, "Improdutivo", got["label"])
	assert.EqualValues(t, -3, got["score"])
	assert.Contains(t, got["suggested_reply"], "promocional")
}

func TestRunClassifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msg.eml")
	require.NoError(t, os.WriteFile(path, []byte("From: a@b.com\r\nSubject: Boleto vencido\r\n\r\nSegue anexo o boleto.\r\n"), 0600))

	var out bytes.Buffer
	err := runClassify(&out, strings.NewReader(""), triage.New(nil), nil, classifyOptions{file: path, explain: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Categoria: Produtivo")
	assert.Contains(t, out.String(), "Pontuação:")

	err = runClassify(&out, strings.NewReader(""), triage.New(nil), nil, classifyOptions{file: filepath.Join(t.TempDir(), "none.eml")})
	assert.Error(t, err)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "curto", truncateString("curto", 10))
	assert.Equal(t, "atualiz...", truncateString("atualização pendente", 10))
}

func TestShowLedgerEntry(t *testing.T) {
	store, err := ledger.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.MarkHandled(ctx, "<a@example.org>", "run-1", "INBOX", 42, "<reply@example.com>"))

	var out bytes.Buffer
	require.NoError(t, showLedgerEntry(ctx, &out, store, "<a@example.org>"))
	assert.Contains(t, out.String(), "Mailbox: INBOX (UID 42)")
	assert.Contains(t, out.String(), "Run:     run-1")
	assert.Contains(t, out.String(), "Reply:   <reply@example.com>")

	out.Reset()
	require.NoError(t, showLedgerEntry(ctx, &out, store, "<missing@example.org>"))
	assert.Contains(t, out.String(), "has not been handled")
}
