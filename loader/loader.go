// Package loader reads patient source data: MIMIC-style gzipped CSV tables
// laid out under hosp/ and icu/ directories, XLSX workbooks carrying the
// same tables, and clinical PDF documents. It assembles per-patient records
// and renders them into the clinical text the extraction pipeline consumes.
package loader

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table names looked up under the dataset root. Each may exist as
// <root>/hosp/<name>.csv.gz, <root>/<name>.csv.gz, or as an XLSX sheet.
const (
	tablePatients      = "patients"
	tableAdmissions    = "admissions"
	tableDiagnoses     = "diagnoses_icd"
	tablePrescriptions = "prescriptions"
	tableICDLookup     = "d_icd_diagnoses"
)

// Row is one CSV or sheet row keyed by lowercased column name.
type Row map[string]string

// PatientRecord aggregates every table's rows for one patient.
type PatientRecord struct {
	PatientID     string
	Demographics  Row
	Admissions    []Row
	Diagnoses     []Row
	Prescriptions []Row
}

// Dataset is a loaded patient data source.
type Dataset struct {
	patients []*PatientRecord
	icdNames map[string]string // icd_code -> long_title
}

// Patients returns the loaded records ordered by patient id.
func (d *Dataset) Patients() []*PatientRecord { return d.patients }

// ICDTitle resolves an ICD code to its long title, falling back to the
// code itself.
func (d *Dataset) ICDTitle(code string) string {
	if title, ok := d.icdNames[code]; ok {
		return title
	}
	return code
}

// LoadDir loads a dataset from a directory of gzipped CSV tables. Missing
// tables are skipped with a log line; at least the patients table must
// resolve.
func LoadDir(root string) (*Dataset, error) {
	read := func(name string) ([]Row, error) {
		for _, rel := range []string{
			filepath.Join("hosp", name+".csv.gz"),
			filepath.Join("icu", name+".csv.gz"),
			name + ".csv.gz",
			filepath.Join("hosp", name+".csv"),
			name + ".csv",
		} {
			path := filepath.Join(root, rel)
			if _, err := os.Stat(path); err == nil {
				return readCSVFile(path)
			}
		}
		return nil, os.ErrNotExist
	}
	return assemble(read)
}

// LoadXLSX loads a dataset from a single workbook whose sheet names match
// the table names.
func LoadXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	sheets := make(map[string]string)
	for _, s := range f.GetSheetList() {
		sheets[strings.ToLower(s)] = s
	}

	read := func(name string) ([]Row, error) {
		sheet, ok := sheets[name]
		if !ok {
			return nil, os.ErrNotExist
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
		}
		return rowsFromRecords(rows), nil
	}
	return assemble(read)
}

func assemble(read func(name string) ([]Row, error)) (*Dataset, error) {
	patients, err := read(tablePatients)
	if err != nil {
		return nil, fmt.Errorf("loading patients table: %w", err)
	}

	byID := make(map[string]*PatientRecord)
	var order []string
	for _, row := range patients {
		id := row["subject_id"]
		if id == "" {
			continue
		}
		byID[id] = &PatientRecord{PatientID: id, Demographics: row}
		order = append(order, id)
	}
	sort.Strings(order)

	attach := func(name string, assign func(rec *PatientRecord, row Row)) {
		rows, err := read(name)
		if err != nil {
			slog.Info("loader: table unavailable, skipping", "table", name)
			return
		}
		for _, row := range rows {
			if rec, ok := byID[row["subject_id"]]; ok {
				assign(rec, row)
			}
		}
	}
	attach(tableAdmissions, func(r *PatientRecord, row Row) { r.Admissions = append(r.Admissions, row) })
	attach(tableDiagnoses, func(r *PatientRecord, row Row) { r.Diagnoses = append(r.Diagnoses, row) })
	attach(tablePrescriptions, func(r *PatientRecord, row Row) { r.Prescriptions = append(r.Prescriptions, row) })

	ds := &Dataset{icdNames: make(map[string]string)}
	if lookup, err := read(tableICDLookup); err == nil {
		for _, row := range lookup {
			if code := row["icd_code"]; code != "" {
				ds.icdNames[code] = row["long_title"]
			}
		}
	} else {
		slog.Info("loader: ICD lookup unavailable, codes stay unresolved")
	}

	for _, id := range order {
		ds.patients = append(ds.patients, byID[id])
	}
	slog.Info("loader: dataset loaded", "patients", len(ds.patients), "icd_codes", len(ds.icdNames))
	return ds, nil
}

// ClinicalText renders a patient record into the prose the extraction
// pipeline processes, resolving ICD codes through the dataset's lookup.
func (d *Dataset) ClinicalText(rec *PatientRecord) string {
	var b strings.Builder

	if g := rec.Demographics["gender"]; g != "" {
		fmt.Fprintf(&b, "Patient gender: %s. ", g)
	}
	if age := rec.Demographics["anchor_age"]; age != "" {
		fmt.Fprintf(&b, "Patient age: %s. ", age)
	}

	for _, adm := range rec.Admissions {
		if t := adm["admission_type"]; t != "" {
			fmt.Fprintf(&b, "Admission type: %s. ", t)
		}
		if dx := adm["diagnosis"]; dx != "" {
			fmt.Fprintf(&b, "Admission diagnosis: %s. ", dx)
		}
	}

	for _, dxRow := range rec.Diagnoses {
		if code := dxRow["icd_code"]; code != "" {
			fmt.Fprintf(&b, "Diagnosis: %s. ", d.ICDTitle(code))
		}
	}

	for _, rx := range rec.Prescriptions {
		drug := rx["drug"]
		if drug == "" {
			continue
		}
		if dose := rx["dose_val_rx"]; dose != "" {
			unit := rx["dose_unit_rx"]
			fmt.Fprintf(&b, "Medication: %s %s%s. ", drug, dose, unit)
		} else {
			fmt.Fprintf(&b, "Medication: %s. ", drug)
		}
	}

	return strings.TrimSpace(b.String())
}

// AdmissionID returns the patient's first admission id, empty when none.
func (rec *PatientRecord) AdmissionID() string {
	if len(rec.Admissions) == 0 {
		return ""
	}
	return rec.Admissions[0]["hadm_id"]
}

func readCSVFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV %s: %w", path, err)
	}
	return rowsFromRecords(records), nil
}

// rowsFromRecords turns a header row plus data rows into keyed Rows.
// Column names are lowercased; short rows leave trailing columns empty.
func rowsFromRecords(records [][]string) []Row {
	if len(records) < 2 {
		return nil
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	out := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		out = append(out, row)
	}
	return out
}
