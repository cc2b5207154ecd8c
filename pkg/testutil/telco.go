// Package testutil provides churn data fixtures shared by package tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TelcoHeader is the column layout of the generated fixtures.
const TelcoHeader = "customerID,gender,SeniorCitizen,tenure,Contract,InternetService,MonthlyCharges,TotalCharges,Churn"

var (
	contracts = []string{"Month-to-month", "One year", "Two year"}
	internet  = []string{"DSL", "Fiber optic", "No"}
)

// TelcoCSV returns n deterministic customer rows. Short month-to-month
// fiber customers churn; every seventh churns regardless so the classes
// overlap. Customers with zero tenure have a blank TotalCharges cell.
func TelcoCSV(n int) string {
	var sb strings.Builder
	sb.WriteString(TelcoHeader)
	sb.WriteByte('\n')
	for i := range n {
		tenure := (i * 13) % 73
		contract := contracts[(i/2)%len(contracts)]
		service := internet[(i/3)%len(internet)]
		gender := "Female"
		if i%2 == 1 {
			gender = "Male"
		}
		monthly := 20 + float64((i*37)%100)
		total := fmt.Sprintf("%.2f", monthly*float64(tenure))
		if tenure == 0 {
			total = " "
		}
		churn := "No"
		if (contract == contracts[0] && tenure < 24) || i%7 == 0 {
			churn = "Yes"
		}
		fmt.Fprintf(&sb, "C%04d,%s,%d,%d,%s,%s,%.2f,%s,%s\n",
			i, gender, i%5/4, tenure, contract, service, monthly, total, churn)
	}
	return sb.String()
}

// WriteTelcoCSV writes TelcoCSV(n) into dir and returns the file path.
func WriteTelcoCSV(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "telco.csv")
	require.NoError(t, os.WriteFile(path, []byte(TelcoCSV(n)), 0600))
	return path
}

// WriteFile writes content into dir/name and returns the file path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// BlankCells clears column in the given zero-based data rows of csv.
func BlankCells(t *testing.T, csv, column string, rows ...int) string {
	t.Helper()
	lines := strings.Split(csv, "\n")
	idx := slices.Index(strings.Split(lines[0], ","), column)
	require.GreaterOrEqual(t, idx, 0, "column %s not in header", column)
	for _, r := range rows {
		require.Less(t, r+1, len(lines), "row %d out of range", r)
		cells := strings.Split(lines[r+1], ",")
		cells[idx] = ""
		lines[r+1] = strings.Join(cells, ",")
	}
	return strings.Join(lines, "\n")
}
