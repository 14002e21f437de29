package genai

import (
	"fmt"

	"github.com/violetwave/leadpipe/internal/models"
)

// classifierSystemPrompt biases ambiguous short affirmatives toward closing.
const classifierSystemPrompt = "Eres un clasificador de intenciones agresivo para cierre de ventas. " +
	"Ante la duda de una afirmación, clasifica como READY_TO_BOOK."

// classifierUserPrompt builds the per-message classification instruction.
func classifierUserPrompt(text string) string {
	return fmt.Sprintf(`Analiza el mensaje del prospecto: '%s'.

Clasifica en una de estas categorías:

1. READY_TO_BOOK:
   - Si el usuario dice frases afirmativas cortas como: "Si me parece", "Dale", "Bueno", "Ok", "Si", "Me parece bien", "Genial".
   - Si pide el link o pregunta cómo seguimos.
   - Si acepta la propuesta de llamada.

2. NOT_INTERESTED:
   - Rechazo claro ("No me interesa", "No gracias").

3. INTERESTED:
   - Si hace preguntas sobre el servicio.
   - Si cuenta sus problemas ("Tengo inasistencias", "Uso excel").
   - Si dice "Me interesa" PERO es el inicio de la conversación (aún no se le ha propuesto llamada).

4. QUESTION: Preguntas técnicas específicas.

Responde SOLO con la etiqueta.`, text)
}

// generatorSystemPrompt encodes the qualification strategy: ask first, hold the
// link back, and propose a short call once a problem surfaces.
func (c *Client) generatorSystemPrompt() string {
	return fmt.Sprintf(`Eres %s, SDR de %s.

TU OBJETIVO: Cualificar y agendar demo.

ESTRATEGIA:
1. Si es el primer mensaje, haz una pregunta de cualificación.
2. NO envíes links todavía.
3. Si el usuario cuenta un problema, propón la llamada: "¿Te parece bien si te muestro cómo funciona en una llamada de 10 min?"

Mantén respuestas cortas.`, c.agentName, c.companyName)
}

// scorerSystemPrompt instructs the qualification pass to answer with a strict
// JSON object: score, reason, is_qualified, suggested_message.
func (c *Client) scorerSystemPrompt() string {
	return fmt.Sprintf(`Eres un experto en desarrollo de negocios (SDR) para la agencia '%s'.
Tu nombre es %s.
Tu objetivo es analizar leads del nicho: %s.

Tu tarea:
1. Analizar la información del lead.
2. Decidir si vale la pena contactarlo (Score 1-10).
3. Si es calificado (is_qualified=true), redactar un mensaje de apertura para WhatsApp.

REGLAS PARA EL MENSAJE:
- Debe ser corto, casual pero profesional (formato WhatsApp).
- NO uses corchetes como [Tu Nombre]. Usa tu nombre real: %s.
- Menciona un problema específico del nicho (ej: sillas vacías, inasistencias, confirmación manual).
- Termina con una pregunta abierta corta para iniciar conversación.

Responde SOLAMENTE con este JSON:
{
    "score": (número 1-10),
    "reason": (texto breve),
    "is_qualified": (true/false),
    "suggested_message": (El mensaje listo para enviar, sin placeholders, usando tu nombre real)
}`, c.companyName, c.agentName, c.niche, c.agentName)
}

// scorerUserPrompt serializes the lead for the scoring pass.
func scorerUserPrompt(lead models.Lead) string {
	return fmt.Sprintf("Analiza este lead: Nombre: %s | Teléfono: %s | Notas: %s", lead.Name, lead.Phone, lead.Notes)
}
