package invoice

// Sentinel is the word the planner prompt asks the model to end with.
const Sentinel = "TERMINATE"

const fieldList = `- date
- customer_name
- item
- quantity
- price
- total`

const compareSystemPrompt = `You are the planner agent.

You will receive extracted text from two invoices, labelled INVOICE 1 and INVOICE 2.
Your task is to compare the invoices and extract the following structured information from both:

` + fieldList + `

Return the results in JSON format exactly like this:

{
    "invoice1": {
        "date": "...",
        "customer_name": "...",
        "item": "...",
        "quantity": "...",
        "price": "...",
        "total": "..."
    },
    "invoice2": {
        "date": "...",
        "customer_name": "...",
        "item": "...",
        "quantity": "...",
        "price": "...",
        "total": "..."
    },
    "differences": "Describe any differences between invoice1 and invoice2 here."
}

If any field is missing, use null. After producing this JSON, ` + Sentinel + `.`

const extractSystemPrompt = `You read the extracted text of a single invoice and return its key fields.

Extract:

` + fieldList + `

Return JSON only, exactly like this:

{
    "date": "...",
    "customer_name": "...",
    "item": "...",
    "quantity": "...",
    "price": "...",
    "total": "..."
}

If any field is missing, use null. Copy values as printed on the invoice.`
