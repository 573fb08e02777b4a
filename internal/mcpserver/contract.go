package mcpserver

// StoreFormatURI names the store format resource.
const StoreFormatURI = "medrec://store-format"

// StoreFormatContract describes the flat-file stores so that LLM consumers
// can interpret identifiers and dates returned by the tools.
const StoreFormatContract = `# medrec Store Format

Records live in comma-separated files with a header row. Columns are read by
header name; new files are written in the order listed here.

## Patient data

` + "```" + `
Patient_ID,Visit_ID,Visit_time,Visit_department,Gender,Race,Age,Ethnicity,Insurance,Zip_code,Chief_complaint,Note_ID,Note_type
` + "```" + `

- One row per (patient, visit, note). Rows sharing ` + "`" + `Patient_ID` + "`" + ` form one patient, in file order.
- ` + "`" + `Visit_time` + "`" + ` is a date stored as ` + "`" + `MM/DD/YYYY` + "`" + `; it carries no time of day.
- ` + "`" + `Age` + "`" + ` is a non-negative integer.
- Generated ` + "`" + `Visit_ID` + "`" + ` values are 8 hex characters, ` + "`" + `Note_ID` + "`" + ` values 6.

## Notes

` + "```" + `
Note_ID,Note_text
` + "```" + `

- Note text is looked up by ` + "`" + `Note_ID` + "`" + `; a note with no row here has empty text.
- The note type always comes from the patient data row.

## Dates in tool arguments

Tool arguments take dates as ` + "`" + `YYYY-MM-DD` + "`" + ` (for example ` + "`" + `2021-01-05` + "`" + `).
Results show stored dates as ` + "`" + `MM/DD/YYYY` + "`" + `.

## Access

Every tool call runs as the user the server was started with. A tool the
user's role does not allow returns an error naming the missing capability.
`
