// Package export renders admin reports.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"ctonjob/internal/database"
)

const usersSheet = "Utilisateurs"

var usersHeader = []any{"ID", "Nom complet", "Email", "Rôle", "Consentement", "Mentions légales", "Date de consentement", "Inscrit le"}

// WriteUsersXLSX 将用户资料写成单个工作表的 xlsx。
func WriteUsersXLSX(w io.Writer, profiles []database.Profile) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", usersSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(usersSheet, "A1", &usersHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, p := range profiles {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		consentDate := ""
		if p.DateConsentement != nil {
			consentDate = p.DateConsentement.UTC().Format("2006-01-02 15:04")
		}
		row := []any{
			p.ID,
			p.FullName,
			p.Email,
			string(p.Role),
			yesNo(p.Consentement),
			yesNo(p.MentionsLegales),
			consentDate,
			p.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		if err := f.SetSheetRow(usersSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(usersSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "oui"
	}
	return "non"
}
